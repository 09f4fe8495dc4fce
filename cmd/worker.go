package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskhub/apiserver/config"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/notify"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the account email delivery worker",
	Long: `Runs the account email delivery worker. It drains email jobs
published by the API server from the configured broker. Usage:

	apiserver worker
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()

		backend, err := newNotifyBackend(cmd.Context(), cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start worker: %v\n", err)
			os.Exit(1)
		}
		queue := mq.New(backend)
		defer func() {
			_ = queue.Close()
		}()

		log.Printf("worker consuming %q via %s", cfg.Notify.Channel, cfg.Notify.Backend)
		err = notify.Consume(cmd.Context(), queue, cfg.Notify.Channel, deliverEmail)
		if err != nil {
			fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func newNotifyBackend(ctx context.Context, cfg config.Config) (mq.Backend, error) {
	switch cfg.Notify.Backend {
	case "rabbitmq":
		return mq.NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return mq.NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("notify backend %q cannot consume", cfg.Notify.Backend)
	}
}

// deliverEmail is the delivery hook. Wiring an actual email provider
// happens here; until then each job is acknowledged with a log line.
func deliverEmail(_ context.Context, job notify.EmailJob) error {
	log.Printf("delivering %s email to %s from %s", job.Template, job.To, job.From)
	return nil
}
