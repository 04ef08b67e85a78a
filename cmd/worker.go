package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"jobrunner/src/infrastructure/log"
	"jobrunner/src/infrastructure/worker"
	"jobrunner/src/jobctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a worker pool fed by the AMQP relay",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()
	logger := log.WithName("worker-cmd")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	wmLogger := log.NewWatermillAdapter(log.WithName("relay"))
	subscriber, err := newAMQPSubscriber(cfg, wmLogger)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	queue := worker.NewQueue()
	router, err := newRelayRouter(subscriber, queue, wmLogger)
	if err != nil {
		return err
	}

	pool := newPool(cfg, queue, repo, newRegistry(jobctrl.DefaultBuiltinOptions()))
	if err := pool.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		if err := router.Close(); err != nil {
			logger.Error(err, "Failed to close router")
		}
		if err := stopPool(pool, cfg.Worker.StopTimeout); err != nil {
			logger.Error(err, "Worker pool forced to stop")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Worker stopped")
	return nil
}
