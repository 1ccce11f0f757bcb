package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jonwraymond/calccache/calc"
)

// Codes attached to failures the process adapter synthesizes.
const (
	CodeEncode   = "E_ENGINE_ENCODE"
	CodeStart    = "E_ENGINE_START"
	CodeExit     = "E_ENGINE_EXIT"
	CodeProtocol = "E_ENGINE_PROTOCOL"
	CodeTimeout  = "E_TIMEOUT"
)

// DefaultStderrTail is how many trailing stderr bytes a failure carries.
const DefaultStderrTail = 4096

// ErrNoCommand indicates an empty ProcessConfig.Command.
var ErrNoCommand = errors.New("engine: command is required")

// ProcessConfig describes the external driver.
type ProcessConfig struct {
	// Command is the executable, resolved through PATH.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"dir"`

	// Env is appended to the inherited environment.
	Env []string `yaml:"env"`

	// StderrTail bounds the stderr excerpt kept on failure.
	// Default: 4096
	StderrTail int `yaml:"stderr_tail"`

	// WaitDelay bounds how long output pipes are drained after the
	// process is killed.
	// Default: 5s
	WaitDelay time.Duration `yaml:"wait_delay"`
}

// Process runs one driver process per attempt. The request is written to
// stdin as JSON; the driver answers on stdout with
//
//	{"ok": true, "payload": <any JSON>}
//	{"ok": false, "diagnostic": "...", "code": "..."}
type Process struct {
	cfg  ProcessConfig
	path string
}

// Response is the driver's stdout document.
type Response struct {
	OK         bool            `json:"ok"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Diagnostic string          `json:"diagnostic,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// NewProcess resolves the command and returns the adapter.
func NewProcess(cfg ProcessConfig) (*Process, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, ErrNoCommand
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve %q: %w", cfg.Command, err)
	}
	if cfg.StderrTail <= 0 {
		cfg.StderrTail = DefaultStderrTail
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 5 * time.Second
	}
	return &Process{cfg: cfg, path: path}, nil
}

// Attempt runs the driver once. Every failure, including a crash or
// malformed output, is returned as a failed outcome.
func (p *Process) Attempt(ctx context.Context, req calc.Request) calc.EngineOutcome {
	input, err := json.Marshal(req)
	if err != nil {
		return calc.Failed(fmt.Sprintf("encode request: %v", err), CodeEncode)
	}

	cmd := exec.CommandContext(ctx, p.path, p.cfg.Args...)
	cmd.Dir = p.cfg.Dir
	if len(p.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.cfg.Env...)
	}
	cmd.WaitDelay = p.cfg.WaitDelay
	cmd.Stdin = bytes.NewReader(input)
	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: p.cfg.StderrTail}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return calc.Failed(fmt.Sprintf("engine process stopped: %v", ctx.Err()), CodeTimeout)
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return calc.Failed(fmt.Sprintf("start engine: %v", runErr), CodeStart)
	}

	var resp Response
	decodeErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp)
	switch {
	case decodeErr == nil && runErr == nil && resp.OK:
		return calc.Succeeded([]byte(resp.Payload))
	case decodeErr == nil && !resp.OK:
		diag := resp.Diagnostic
		if diag == "" {
			diag = stderr.String()
		}
		return calc.Failed(diag, resp.Code)
	case runErr != nil:
		return calc.Failed(fmt.Sprintf("engine exited with status %d: %s", exitErr.ExitCode(), stderr.String()), CodeExit)
	default:
		return calc.Failed(fmt.Sprintf("malformed engine output: %v: %s", decodeErr, stderr.String()), CodeProtocol)
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}

var (
	_ calc.Engine = Func(nil)
	_ calc.Engine = (*Process)(nil)
)
