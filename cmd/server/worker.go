package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume only the fulfillment and order-timeout queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var wg sync.WaitGroup
			for _, c := range a.consumers() {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = c.Run(ctx)
				}()
			}
			a.log.Info("workers started")
			wg.Wait()
			return nil
		},
	}
}
