package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func pingCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Probe the host and report round trip times",
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

			for i := 0; i < count; i++ {
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout.Duration)
				start := time.Now()
				err := c.Ping(ctx)
				cancel()
				if err != nil {
					return fmt.Errorf("ping %d/%d: %w", i+1, count, err)
				}
				fmt.Printf("pong from %s: seq=%d time=%s\n", cfg.URL, i+1, time.Since(start).Round(time.Microsecond))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of pings to send")

	return cmd
}
