package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/termmux-dev/termmux/pkg/envelope"
)

func execCmd() *cobra.Command {
	var (
		cwd     string
		envVars []string
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] -- executable [args...]",
		Short: "Run a process on the host and print its output",
		Long: `Run a process on the host side of the connection.

The host executes the command and streams back its captured stdout,
stderr, and exit code. termmux exits with the remote exit code.

Examples:
  termmux exec -- ls -la
  termmux exec --cwd /tmp -- env
  termmux exec --env FOO=bar -- sh -c 'echo $FOO'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := make(map[string]string, len(envVars))
			for _, kv := range envVars {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --env value %q, want KEY=VALUE", kv)
				}
				env[k] = v
			}

			cfg, err := loadEffectiveConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			dialCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout.Duration)
			c, err := dialClient(dialCtx, cfg, logger)
			cancel()
			if err != nil {
				return err
			}
			defer c.Close()

			// No per-call timeout here: the process may legitimately
			// run long, and the host enforces its own bound.
			got, err := c.Call(cmd.Context(), cfg.SessionID, &envelope.RunProcess{
				Executable:       args[0],
				Arguments:        args[1:],
				WorkingDirectory: cwd,
				Env:              env,
			})
			if err != nil {
				return err
			}
			res, ok := got.(*envelope.RunProcessResult)
			if !ok {
				return fmt.Errorf("host answered with %s instead of a process result", got.Kind())
			}

			fmt.Fprint(os.Stdout, res.Stdout)
			fmt.Fprint(os.Stderr, res.Stderr)
			if res.ExitCode != 0 {
				os.Exit(int(res.ExitCode))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cwd, "cwd", "", "Working directory on the host")
	cmd.Flags().StringArrayVar(&envVars, "env", nil, "Extra environment variables (KEY=VALUE, repeatable)")

	return cmd
}
