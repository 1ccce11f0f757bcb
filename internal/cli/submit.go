package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/flight"
	"github.com/jonwraymond/calccache/server"
	"github.com/jonwraymond/calccache/service"
)

func newSubmitCmd(g *globals) *cobra.Command {
	var opts flight.SubmitOptions
	cmd := &cobra.Command{
		Use:   "submit [request.json]",
		Short: "Run one calculation through the cache and print its outcome",
		Long:  "Submit reads a JSON request from the named file, or stdin when the name is empty or \"-\", and prints the outcome as JSON. A failure outcome exits with status 3.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			req, err := readRequest(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := g.load(cmd.Context())
			if err != nil {
				return err
			}
			svc, err := service.New(cmd.Context(), cfg, service.Options{Engine: g.engine, LogWriter: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, svc.Close(cmd.Context())) }()

			out := svc.Orchestrator.Submit(cmd.Context(), req, opts)
			if err := writeJSON(cmd.OutOrStdout(), server.NewOutcomeResponse(out)); err != nil {
				return err
			}
			if !out.IsSuccess() {
				return errCalcFailed
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "maximum wait for the outcome (default flight.wait_timeout)")
	cmd.Flags().BoolVar(&opts.BypassCache, "bypass-cache", false, "recompute even when an outcome is cached")
	return cmd
}

// readRequest decodes a request from args[0], or stdin when absent or "-".
func readRequest(cmd *cobra.Command, args []string) (calc.Request, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return calc.Request{}, err
		}
		defer f.Close()
		r = f
	}

	var req calc.Request
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return calc.Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
