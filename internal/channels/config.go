package channels

// EventChannelsConfig configures buffer sizes for event channels
type EventChannelsConfig struct {
	CycleBufferSize     int
	HostStateBufferSize int
	ConnectorBufferSize int
}
