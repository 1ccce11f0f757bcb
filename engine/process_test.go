package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/calccache/calc"
)

// TestHelperProcess is the fake driver run by the tests below. It is not a
// real test.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv("CALCCACHE_HELPER_MODE")
	if mode == "" {
		return
	}
	defer os.Exit(0)

	var req calc.Request
	data, _ := io.ReadAll(os.Stdin)
	_ = json.Unmarshal(data, &req)

	switch mode {
	case "echo":
		payload, _ := json.Marshal(map[string]any{"method": req.Method, "atoms": len(req.Molecule.Atoms)})
		fmt.Printf(`{"ok":true,"payload":%s}`, payload)
	case "fail":
		fmt.Print(`{"ok":false,"diagnostic":"SCF iterations did not converge","code":"SCFConvergenceError"}`)
	case "crash":
		fmt.Fprint(os.Stderr, "Traceback (most recent call last):\nMemoryError: out of memory")
		os.Exit(3)
	case "garbage":
		fmt.Print("psi4 banner text")
	case "hang":
		time.Sleep(time.Minute)
	}
}

func helper(t *testing.T, mode string) *Process {
	t.Helper()
	p, err := NewProcess(ProcessConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess"},
		Env:     []string{"CALCCACHE_HELPER_MODE=" + mode},
	})
	if err != nil {
		t.Fatalf("NewProcess failed: %v", err)
	}
	return p
}

func request() calc.Request {
	return calc.Request{
		Method:   "hf",
		Basis:    "sto-3g",
		Molecule: calc.Molecule{Multiplicity: 1, Atoms: []calc.Atom{{Element: "He"}}},
	}
}

func TestProcess_Attempt(t *testing.T) {
	tests := []struct {
		mode     string
		wantOK   bool
		wantCode string
		wantDiag string
	}{
		{mode: "echo", wantOK: true},
		{mode: "fail", wantCode: "SCFConvergenceError", wantDiag: "did not converge"},
		{mode: "crash", wantCode: CodeExit, wantDiag: "MemoryError: out of memory"},
		{mode: "garbage", wantCode: CodeProtocol, wantDiag: "malformed engine output"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			out := helper(t, tt.mode).Attempt(context.Background(), request())
			if out.OK() != tt.wantOK {
				t.Fatalf("OK() = %v, want %v (%+v)", out.OK(), tt.wantOK, out.Failure)
			}
			if tt.wantOK {
				if string(out.Payload) != `{"atoms":1,"method":"hf"}` {
					t.Errorf("Payload = %s", out.Payload)
				}
				return
			}
			if out.Failure.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", out.Failure.Code, tt.wantCode)
			}
			if !strings.Contains(out.Failure.Diagnostic, tt.wantDiag) {
				t.Errorf("Diagnostic = %q, want it to contain %q", out.Failure.Diagnostic, tt.wantDiag)
			}
		})
	}
}

func TestProcess_Cancelled(t *testing.T) {
	p := helper(t, "hang")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := p.Attempt(ctx, request())
	if out.OK() || out.Failure.Code != CodeTimeout {
		t.Fatalf("Attempt = %+v, want timeout failure", out.Failure)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("Attempt did not stop with its context")
	}
}

func TestNewProcess_Errors(t *testing.T) {
	if _, err := NewProcess(ProcessConfig{}); !errors.Is(err, ErrNoCommand) {
		t.Errorf("NewProcess(empty) = %v, want ErrNoCommand", err)
	}
	if _, err := NewProcess(ProcessConfig{Command: "calccache-no-such-driver"}); err == nil {
		t.Error("NewProcess(missing) should fail")
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 5}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defgh"))
	if got := b.String(); got != "defgh" {
		t.Errorf("String() = %q, want %q", got, "defgh")
	}
}
