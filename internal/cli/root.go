// Package cli implements the calccache command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/config"
	"github.com/jonwraymond/calccache/secret"
)

// Exit codes.
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitFailed  = 3
)

// version is set at build time with -ldflags "-X".
var version = "dev"

// errCalcFailed marks a command that ran but produced a failure outcome.
var errCalcFailed = errors.New("calculation failed")

// globals holds persistent flags shared by every command.
type globals struct {
	configPath string
	envFile    string
	secretsDir string
	debug      bool

	// engine replaces the configured engine process in tests.
	engine calc.Engine
}

// Run executes the command line and returns an exit code.
func Run() int {
	return execute(context.Background(), newRootCmd(&globals{}), os.Args[1:])
}

func execute(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		// The outcome itself was already printed.
		if errors.Is(err, errCalcFailed) {
			return ExitFailed
		}
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:           "calccache",
		Short:         "Result cache and failure recovery for quantum chemistry calculations",
		Long:          "Calccache runs calculations through an engine at most once per input, caches their outcomes and recovers from classified failures.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&g.secretsDir, "secrets-dir", "", "root directory for secretref:file references")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(g),
		newSubmitCmd(g),
		newFingerprintCmd(g),
		newClassifyCmd(g),
		newStrategiesCmd(g),
		newInvalidateCmd(g),
		newPruneCmd(g),
		newTokenCmd(g),
		newVersionCmd(),
	)
	return root
}

// load reads the dotenv file, then the config with env and file secret
// providers.
func (g *globals) load(ctx context.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return nil, err
	}
	res, err := secret.NewDefaultRegistry().Resolver(true, map[string]map[string]any{
		"env":  nil,
		"file": {"root": g.secretsDir},
	})
	if err != nil {
		return nil, err
	}
	defer res.Close()

	cfg, err := config.Load(ctx, g.configPath, res)
	if err != nil {
		return nil, err
	}
	if g.debug {
		cfg.Logging.Enabled = true
		cfg.Logging.Level = "debug"
	}
	if cfg.Service.Version == "dev" {
		cfg.Service.Version = version
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print calccache version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "calccache version %s\n", version)
		},
	}
}
