package composite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Executor runs compositors with a timeout.
type Executor struct {
	timeoutMs int
}

// NewExecutor creates a new Executor with the specified timeout in milliseconds.
func NewExecutor(timeoutMs int) *Executor {
	return &Executor{
		timeoutMs: timeoutMs,
	}
}

// Execute runs c with req as JSON on stdin and parses stdout as a Response. A compositor that
// reports failure yields an error carrying its message.
func (e *Executor) Execute(ctx context.Context, c *Compositor, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.timeoutMs)*time.Millisecond)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Executable)
	cmd.Dir = c.Path
	// children of a killed compositor may hold stdout open
	cmd.WaitDelay = time.Second

	if req.Options == nil {
		req.Options = c.Manifest.Options
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("compositor %s timed out after %dms", c.Manifest.Name, e.timeoutMs)
	}
	if err != nil {
		if s := stderr.String(); s != "" {
			return nil, fmt.Errorf("compositor %s failed: %w, stderr: %s", c.Manifest.Name, err, s)
		}
		return nil, fmt.Errorf("compositor %s failed: %w", c.Manifest.Name, err)
	}

	var response Response
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse compositor response: %w, stdout: %s", err, stdout.String())
	}
	if !response.Success {
		return &response, fmt.Errorf("compositor %s: %s", c.Manifest.Name, response.Error)
	}
	if response.Output == "" {
		response.Output = req.Output
	}

	return &response, nil
}
