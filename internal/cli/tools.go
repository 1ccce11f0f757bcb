package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/calccache/auth"
	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/fingerprint"
)

func newFingerprintCmd(g *globals) *cobra.Command {
	var canonical, labels bool
	cmd := &cobra.Command{
		Use:   "fingerprint [request.json]",
		Short: "Print the cache key of a request",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := g.load(cmd.Context())
			if err != nil {
				return err
			}
			gen := fingerprint.New(cfg.Fingerprint)
			fmt.Fprintln(cmd.OutOrStdout(), gen.Fingerprint(req))
			if canonical {
				fmt.Fprintln(cmd.OutOrStdout(), string(gen.Canonical(req)))
			}
			if labels {
				l := gen.Labels(req)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "kind:\t%s\n", l.Kind)
				fmt.Fprintf(w, "method:\t%s\n", l.Method)
				fmt.Fprintf(w, "basis:\t%s\n", l.Basis)
				fmt.Fprintf(w, "molecule:\t%s\n", l.Molecule)
				return w.Flush()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&canonical, "canonical", false, "also print the canonical form that was hashed")
	cmd.Flags().BoolVar(&labels, "labels", false, "also print the labels used by invalidate filters")
	return cmd
}

func newClassifyCmd(g *globals) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "classify [diagnostic...]",
		Short: "Categorize an engine diagnostic and list its recovery strategies",
		Long:  "Classify joins its arguments into one diagnostic, or reads it from stdin when there are none.",
		RunE: func(cmd *cobra.Command, args []string) error {
			diag := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				diag = string(b)
			}
			cfg, err := g.load(cmd.Context())
			if err != nil {
				return err
			}
			c, err := cfg.Classifier.Build()
			if err != nil {
				return err
			}
			table, err := cfg.RecoveryTable()
			if err != nil {
				return err
			}

			m := c.Explain(diag, code)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "category:\t%s\n", m.Category)
			fmt.Fprintf(w, "source:\t%s\n", m.Source)
			if m.Rule != "" {
				fmt.Fprintf(w, "rule:\t%s\n", m.Rule)
			}
			fmt.Fprintf(w, "recoverable:\t%t\n", m.Category.Recoverable())
			if names := table.Names(m.Category); len(names) > 0 {
				fmt.Fprintf(w, "strategies:\t%s\n", strings.Join(names, ", "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "engine error code, checked before the diagnostic text")
	return cmd
}

func newStrategiesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List recovery strategies per failure category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd.Context())
			if err != nil {
				return err
			}
			table, err := cfg.RecoveryTable()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tSTEP\tDESCRIPTION")
			for _, cat := range calc.Categories {
				steps := table.StrategiesFor(cat)
				if len(steps) == 0 {
					fmt.Fprintf(w, "%s\t-\tnot recoverable\n", cat)
					continue
				}
				for _, st := range steps {
					fmt.Fprintf(w, "%s\t%s\t%s\n", cat, st.Name, st.Description)
				}
			}
			return w.Flush()
		},
	}
}

func newTokenCmd(g *globals) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token with the configured JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd.Context())
			if err != nil {
				return err
			}
			a, err := auth.NewJWTAuthenticator(cfg.Auth.JWT())
			if err != nil {
				return err
			}
			tok, err := a.Issue(subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (required)")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeSubmit, auth.ScopeRead}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
