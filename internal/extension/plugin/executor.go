package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"
)

// Executor runs plugin binaries via STDIN/STDOUT
type Executor struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates a plugin executor. timeout applies to plugins whose
// manifest sets none.
func NewExecutor(timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		timeout: timeout,
		logger:  logger.With("component", "plugin_executor"),
	}
}

// Run sends one request to the plugin and decodes its response.
func (e *Executor) Run(ctx context.Context, p *Info, req Request) (*Response, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plugin request: %w", err)
	}

	timeout := e.timeout
	if p.Manifest.TimeoutMs > 0 {
		timeout = time.Duration(p.Manifest.TimeoutMs) * time.Millisecond
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.BinaryPath)
	cmd.Dir = p.Dir
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("Executing plugin",
		"plugin", p.Manifest.ID,
		"operation", req.Operation,
		"request_id", req.RequestID,
	)

	err = cmd.Run()

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("plugin execution timed out after %v", timeout)
	}

	if err != nil {
		e.logger.Warn("Plugin execution failed",
			"plugin", p.Manifest.ID,
			"error", err,
			"stderr", stderr.String(),
		)
		return nil, fmt.Errorf("plugin execution failed: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse plugin response: %w", err)
	}
	if resp.RequestID != "" && resp.RequestID != req.RequestID {
		return nil, fmt.Errorf("plugin answered request %s, expected %s", resp.RequestID, req.RequestID)
	}
	if resp.Status != StatusSuccess {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("status %q", resp.Status)
		}
		return &resp, fmt.Errorf("plugin %s: %s", p.Manifest.ID, msg)
	}

	return &resp, nil
}
