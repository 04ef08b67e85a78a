package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpHdlr "jobrunner/handler/http"
	"jobrunner/src/infrastructure/job"
	"jobrunner/src/infrastructure/log"
	"jobrunner/src/infrastructure/worker"
	"jobrunner/src/jobctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job API server with an embedded worker pool",
	Long: `The serve command starts an HTTP server for submitting and inspecting jobs
together with a worker pool that executes them. With amqp.enabled, submissions
are published on the relay and consumed back from it.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()
	logger := log.WithName("serve")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	queue := worker.NewQueue()
	pool := newPool(cfg, queue, repo, newRegistry(jobctrl.DefaultBuiltinOptions()))

	g, gctx := errgroup.WithContext(ctx)

	var dispatcher job.Dispatcher = job.QueueDispatcher{Queue: queue}
	if cfg.AMQP.Enabled {
		wmLogger := log.NewWatermillAdapter(log.WithName("relay"))

		publisher, err := newAMQPPublisher(cfg, wmLogger)
		if err != nil {
			return err
		}
		defer publisher.Close()

		subscriber, err := newAMQPSubscriber(cfg, wmLogger)
		if err != nil {
			return err
		}
		defer subscriber.Close()

		router, err := newRelayRouter(subscriber, queue, wmLogger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return router.Run(gctx)
		})

		dispatcher = job.NewRelayPublisher(publisher)
	}

	if err := pool.Start(ctx); err != nil {
		return err
	}

	r := gin.Default()
	httpHdlr.NewJobHandler(job.NewJobService(repo, dispatcher)).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr, "workers", pool.Size(), "relay", cfg.AMQP.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "Server forced to shutdown")
		}

		if err := stopPool(pool, cfg.Worker.StopTimeout); err != nil {
			logger.Error(err, "Worker pool forced to stop")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Server exited")
	return nil
}
