package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	inats "github.com/bnv-me/webbnv/internal/nats"
)

var (
	tailConsumer string
	tailSubject  string
)

func init() {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect plugin lifecycle events",
	}

	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print lifecycle events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.NATS.URL == "" {
				return errors.New("NATS_URL is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			nc, err := inats.NewClient(ctx, cfg.NATS)
			if err != nil {
				return fmt.Errorf("connecting to nats: %w", err)
			}
			defer nc.Close()

			consumer, err := inats.NewConsumerManager(nc.JetStream()).EnsureConsumer(ctx, tailConsumer, tailSubject)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return inats.Tail(ctx, consumer, func(subject string, data []byte) error {
				_, err := fmt.Fprintf(out, "%s %s\n", subject, data)
				return err
			})
		},
	}
	tailCmd.Flags().StringVar(&tailConsumer, "consumer", "bnv-events-tail", "durable consumer name")
	tailCmd.Flags().StringVar(&tailSubject, "subject", inats.SubjectAll, "subject filter")

	eventsCmd.AddCommand(tailCmd)
	RootCmd.AddCommand(eventsCmd)
}
