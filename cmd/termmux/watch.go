package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/termmux-dev/termmux/pkg/envelope"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print shell lifecycle notifications as they arrive",
		Long: `Subscribe to every notification kind the host emits and print
them line by line until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			c.OnNotification(envelope.KindEditBuffer, func(req *envelope.Request) {
				p := req.Payload.(*envelope.EditBuffer)
				fmt.Printf("editBuffer session=%s cursor=%d text=%q\n", req.SessionID, p.Cursor, p.Text)
			})
			c.OnNotification(envelope.KindInterceptedKey, func(req *envelope.Request) {
				p := req.Payload.(*envelope.InterceptedKey)
				fmt.Printf("interceptedKey key=%s action=%s\n", p.Key, p.Action)
			})
			c.OnNotification(envelope.KindPreExec, func(req *envelope.Request) {
				p := req.Payload.(*envelope.PreExec)
				fmt.Printf("preExec command=%q\n", p.Command)
			})
			c.OnNotification(envelope.KindPostExec, func(req *envelope.Request) {
				p := req.Payload.(*envelope.PostExec)
				fmt.Printf("postExec command=%q exit=%d\n", p.Command, p.ExitCode)
			})
			c.OnNotification(envelope.KindPrompt, func(req *envelope.Request) {
				p := req.Payload.(*envelope.Prompt)
				fmt.Printf("prompt cwd=%s host=%s shell=%s exit=%d\n",
					p.WorkingDirectory, p.Hostname, p.Shell, p.ExitCode)
			})

			fmt.Printf("watching %s (ctrl-c to stop)\n", cfg.URL)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}

	return cmd
}
