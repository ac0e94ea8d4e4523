package plugin

// Manifest represents manifest.json structure
type Manifest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Sources     []string `json:"sources"`
	Criteria    []string `json:"criteria"`
	Health      bool     `json:"health"`
	TimeoutMs   int      `json:"timeout_ms"`
}

// Info combines a manifest with runtime info
type Info struct {
	Manifest   Manifest
	BinaryPath string
	Dir        string
}

// Plugin operations.
const (
	OperationFetch     = "fetch"
	OperationCriterion = "criterion"
	OperationHealth    = "health"
)

// Request is written as JSON to the plugin's stdin.
type Request struct {
	RequestID string   `json:"request_id"`
	Operation string   `json:"operation"`
	Host      HostInfo `json:"host"`
	Source    *Payload `json:"source,omitempty"`
	Criterion *Payload `json:"criterion,omitempty"`
}

// HostInfo carries the host identity and the plugin's own settings.
type HostInfo struct {
	ID       string         `json:"id"`
	Hostname string         `json:"hostname"`
	Type     string         `json:"type"`
	Config   map[string]any `json:"config,omitempty"`
}

// Payload is a source or criterion with its type tag.
type Payload struct {
	Type string `json:"type"`
	Spec any    `json:"spec"`
}

// Response is read as JSON from the plugin's stdout.
type Response struct {
	RequestID string     `json:"request_id"`
	Status    string     `json:"status"`
	RawData   string     `json:"raw_data,omitempty"`
	Table     [][]string `json:"table,omitempty"`
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// StatusSuccess is the status of a successful response.
const StatusSuccess = "success"
