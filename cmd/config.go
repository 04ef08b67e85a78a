package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/viper"

	"jobrunner/src/infrastructure/config"
	"jobrunner/src/infrastructure/database"
	"jobrunner/src/infrastructure/job"
	"jobrunner/src/infrastructure/log"
	"jobrunner/src/infrastructure/worker"
	"jobrunner/src/jobctrl"
)

func settingDefaultConfig() {
	config.SetDefaults(viper.GetViper())
}

// loadConfig reads the optional config file, decodes the settings and
// configures the global logger.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if err := log.Setup(cfg.Log.Level, cfg.Log.Development); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore connects to the configured store and migrates the jobs table.
func openStore(ctx context.Context, cfg *config.Config) (*job.GormJobRepository, error) {
	db, err := database.Open(cfg.Store, cfg.Postgres)
	if err != nil {
		return nil, err
	}

	repo, err := job.NewGormJobRepository(db, cfg.Store.NodeID)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return repo, nil
}

func newRegistry(opts jobctrl.BuiltinOptions) *jobctrl.Registry {
	registry := jobctrl.NewRegistry()
	jobctrl.RegisterBuiltinTasks(registry, opts)
	return registry
}

func newPool(cfg *config.Config, queue *worker.Queue, repo job.JobRepository, registry *jobctrl.Registry) *worker.Pool {
	return worker.NewPool(queue, repo, registry, log.WithName("worker"),
		worker.WithPoolSize(cfg.PoolSize),
		worker.WithJobTimeout(cfg.Worker.JobTimeout),
	)
}

// stopPool stops the pool, forcing in-flight jobs to fail once timeout elapses.
// A zero timeout waits for every worker.
func stopPool(pool *worker.Pool, timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return pool.Stop(ctx)
}

func newAMQPPublisher(cfg *config.Config, logger watermill.LoggerAdapter) (*amqp.Publisher, error) {
	publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(cfg.AMQP.URL), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}
	return publisher, nil
}

func newAMQPSubscriber(cfg *config.Config, logger watermill.LoggerAdapter) (*amqp.Subscriber, error) {
	subscriberConfig := amqp.NewDurableQueueConfig(cfg.AMQP.URL)
	subscriberConfig.Consume.NoRequeueOnNack = true
	subscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}
	return subscriber, nil
}

// newRelayRouter builds a router that feeds relayed job ids from subscriber
// into queue.
func newRelayRouter(subscriber message.Subscriber, queue job.Enqueuer, logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
	)

	job.NewRelayConsumer(queue, logger).Register(router, subscriber)
	return router, nil
}
