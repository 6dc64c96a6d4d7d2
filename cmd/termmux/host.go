package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/termmux-dev/termmux/internal/echohost"
	"github.com/termmux-dev/termmux/pkg/envelope"
)

func hostCmd() *cobra.Command {
	var (
		addr     string
		demo     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run a development host process",
		Long: `Run a standalone host that accepts multiplexer connections on
/mux, serves Prometheus metrics on /metrics, and answers pings and
process execution requests.

With --demo it also broadcasts a synthetic prompt notification on an
interval, which is handy for exercising termmux watch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			h := echohost.New(logger)
			defer h.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           h.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if demo {
				go func() {
					hostname, _ := os.Hostname()
					ticker := time.NewTicker(interval)
					defer ticker.Stop()
					for {
						select {
						case <-ticker.C:
							h.Broadcast(&envelope.Prompt{
								Hostname: hostname,
								Shell:    os.Getenv("SHELL"),
							})
						case <-ctx.Done():
							return
						}
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("host listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			fmt.Println("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "Address to listen on")
	cmd.Flags().BoolVar(&demo, "demo", false, "Broadcast synthetic prompt notifications")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Demo broadcast interval")

	return cmd
}
