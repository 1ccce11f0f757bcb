package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/calccache/cache"
	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/config"
	"github.com/jonwraymond/calccache/fingerprint"
	"github.com/jonwraymond/calccache/observe"
	"github.com/jonwraymond/calccache/service"
)

func newInvalidateCmd(g *globals) *cobra.Command {
	var (
		filter cache.Filter
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "invalidate [fingerprint...]",
		Short: "Remove cached outcomes from the durable backend",
		Long:  "Invalidate removes outcomes by fingerprint, or every outcome matching all of --kind, --method, --basis and --molecule. --all clears the backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			bulk := all || !filter.IsZero()
			switch {
			case bulk && len(args) > 0:
				return errors.New("pass fingerprints or filter flags, not both")
			case !bulk && len(args) == 0:
				return errors.New("pass fingerprints, filter flags or --all")
			case all && !filter.IsZero():
				return errors.New("--all cannot be combined with filter flags")
			}
			if bulk {
				return withStore(cmd, g, func(s *cache.Store, cfg *config.Config) error {
					f := cache.Filter(fingerprint.New(cfg.Fingerprint).CanonicalLabels(calc.Labels(filter)))
					n, err := s.InvalidateWhere(cmd.Context(), f)
					if err != nil {
						return fmt.Errorf("invalidate: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d entries\n", n)
					return nil
				})
			}

			fps := make([]calc.Fingerprint, len(args))
			for i, a := range args {
				fp, err := calc.ParseFingerprint(a)
				if err != nil {
					return err
				}
				fps[i] = fp
			}
			return withStore(cmd, g, func(s *cache.Store, _ *config.Config) error {
				for _, fp := range fps {
					if err := s.Invalidate(cmd.Context(), fp); err != nil {
						return fmt.Errorf("invalidate %s: %w", fp.Short(), err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", fp)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "invalidate outcomes of this calculation kind")
	cmd.Flags().StringVar(&filter.Method, "method", "", "invalidate outcomes computed with this method")
	cmd.Flags().StringVar(&filter.Basis, "basis", "", "invalidate outcomes computed with this basis set")
	cmd.Flags().StringVar(&filter.Molecule, "molecule", "", "invalidate outcomes for this molecule hash (see fingerprint --labels)")
	cmd.Flags().BoolVar(&all, "all", false, "invalidate every outcome")
	return cmd
}

func newPruneCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired entries from the durable backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, g, func(s *cache.Store, _ *config.Config) error {
				n, err := s.Prune(cmd.Context())
				if errors.Is(err, cache.ErrNoPrune) {
					return fmt.Errorf("backend expires entries on its own: %w", err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d expired entries\n", n)
				return nil
			})
		},
	}
}

// withStore opens the configured store, runs fn and closes the store.
func withStore(cmd *cobra.Command, g *globals, fn func(*cache.Store, *config.Config) error) error {
	cfg, err := g.load(cmd.Context())
	if err != nil {
		return err
	}
	switch cfg.Cache.Backend.Kind {
	case "", config.BackendNone, config.BackendMemory:
		return fmt.Errorf("cache.backend.kind %q is not shared with a running server", cfg.Cache.Backend.Kind)
	}
	logger := observe.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	s, err := service.OpenStore(cmd.Context(), cfg.Cache, logger)
	if err != nil {
		return err
	}
	return errors.Join(fn(s, cfg), s.Close())
}
