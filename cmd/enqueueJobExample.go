package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"jobrunner/src/infrastructure/job"
	"jobrunner/src/infrastructure/log"
	"jobrunner/src/jobctrl"
)

var (
	exampleTaskType string
	examplePayload  string
)

var enqueueExampleCmd = &cobra.Command{
	Use:   "enqueue-example",
	Short: "Enqueue an example job on the AMQP relay",
	RunE:  runEnqueueExample,
}

func init() {
	rootCmd.AddCommand(enqueueExampleCmd)

	enqueueExampleCmd.Flags().StringVar(&exampleTaskType, "task-type", jobctrl.TaskTypeMathOp, "task type of the job")
	enqueueExampleCmd.Flags().StringVar(&examplePayload, "payload", `{"operation":"add","a":10,"b":20}`, "JSON object payload of the job")
}

func runEnqueueExample(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Enqueue configuration",
		"store_driver", cfg.Store.Driver,
		"store_path", cfg.Store.Path,
		"postgres_host", cfg.Postgres.Host,
		"postgres_db", cfg.Postgres.DB,
		"amqp_url", cfg.AMQP.URL,
	)

	repo, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	publisher, err := newAMQPPublisher(cfg, log.NewWatermillAdapter(log.WithName("relay")))
	if err != nil {
		return err
	}
	defer publisher.Close()

	jobService := job.NewJobService(repo, job.NewRelayPublisher(publisher))

	created, err := jobService.Submit(cmd.Context(), exampleTaskType, json.RawMessage(examplePayload))
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	fmt.Printf("Successfully enqueued job with ID: %d\n", created.ID)
	return nil
}
