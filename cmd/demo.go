package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"jobrunner/src/infrastructure/job"
	"jobrunner/src/infrastructure/log"
	"jobrunner/src/infrastructure/worker"
	"jobrunner/src/jobctrl"
)

const resultColumnWidth = 50

var (
	demoCount    int
	demoInterval time.Duration
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Submit sample jobs to an in-process pool and print a report",
	Long: `The demo command starts a worker pool, submits sample jobs at a steady
rate through an in-memory relay, waits until every job is processed and prints
the outcome of each job.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().IntVar(&demoCount, "count", 10, "number of jobs to submit")
	demoCmd.Flags().DurationVar(&demoInterval, "interval", 200*time.Millisecond, "delay between submissions")
}

type sampleJob struct {
	taskType string
	payload  map[string]any
}

var sampleJobs = []sampleJob{
	{jobctrl.TaskTypeMathOp, map[string]any{"operation": "add", "a": 10, "b": 20}},
	{jobctrl.TaskTypeMathOp, map[string]any{"operation": "multiply", "a": 5, "b": 5}},
	{jobctrl.TaskTypeTextReverse, map[string]any{"text": "Asyncio is powerful"}},
	{jobctrl.TaskTypeTextReverse, map[string]any{"text": "Data Engineering"}},
	{jobctrl.TaskTypeMockAPIFetch, map[string]any{"url": "https://api.example.com/data/1"}},
	{jobctrl.TaskTypeMockAPIFetch, map[string]any{"url": "https://api.example.com/users/5"}},
	{jobctrl.TaskTypeMathOp, map[string]any{"operation": "divide", "a": 10, "b": 0}},
}

// pickSample returns a random sample with a randomized "a" operand when it has one.
func pickSample(rng *rand.Rand) (string, json.RawMessage, error) {
	sample := sampleJobs[rng.IntN(len(sampleJobs))]

	payload := make(map[string]any, len(sample.payload))
	for k, v := range sample.payload {
		payload[k] = v
	}
	if _, ok := payload["a"]; ok {
		payload["a"] = rng.IntN(100) + 1
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return sample.taskType, b, nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	if demoCount <= 0 {
		return fmt.Errorf("--count must be positive, got %d", demoCount)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()
	logger := log.WithName("demo")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	queue := worker.NewQueue()
	pool := newPool(cfg, queue, repo, newRegistry(jobctrl.DefaultBuiltinOptions()))

	wmLogger := log.NewWatermillAdapter(log.WithName("relay"))
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	defer pubSub.Close()

	router, err := newRelayRouter(pubSub, queue, wmLogger)
	if err != nil {
		return err
	}
	routerCtx, stopRouter := context.WithCancel(ctx)
	defer stopRouter()
	go func() {
		if err := router.Run(routerCtx); err != nil {
			logger.Error(err, "Relay router stopped")
		}
	}()
	<-router.Running()

	if err := pool.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := stopPool(pool, cfg.Worker.StopTimeout); err != nil {
			logger.Error(err, "Worker pool forced to stop")
		}
	}()

	jobService := job.NewJobService(repo, job.NewRelayPublisher(pubSub))
	limiter := rate.NewLimiter(rate.Every(demoInterval), 1)
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	ids := make([]int64, 0, demoCount)
	for range demoCount {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		taskType, payload, err := pickSample(rng)
		if err != nil {
			return err
		}
		created, err := jobService.Submit(ctx, taskType, payload)
		if err != nil {
			return err
		}
		logger.Info("Producer: created job", "job_id", created.ID, "task_type", taskType)
		ids = append(ids, created.ID)
	}

	if err := waitForJobs(ctx, jobService, ids, cmd.ErrOrStderr()); err != nil {
		return err
	}

	logger.Info("All jobs processed, fetching final results")
	return printReport(ctx, cmd.OutOrStdout(), jobService, ids)
}

// waitForJobs shows a progress bar until every job in ids is terminal.
func waitForJobs(ctx context.Context, svc *job.JobService, ids []int64, out io.Writer) error {
	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Processing jobs"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		done := 0
		for _, id := range ids {
			j, err := svc.Get(ctx, id)
			if err != nil {
				return err
			}
			if j.Status.IsTerminal() {
				done++
			}
		}
		_ = bar.Set(done)
		if done == len(ids) {
			return bar.Finish()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printReport(ctx context.Context, out io.Writer, svc *job.JobService, ids []int64) error {
	fmt.Fprintf(out, "\n--- Processing Report (%d jobs) ---\n", len(ids))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tType\tStatus\tResult/Error")

	counts := make(map[job.JobStatus]int)
	for _, id := range ids {
		j, err := svc.Get(ctx, id)
		if err != nil {
			return err
		}
		counts[j.Status]++
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", j.ID, j.TaskType, j.Status, outcomeSummary(j))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nCompleted: %d  Failed: %d  Pending: %d  Processing: %d\n",
		counts[job.JobStatusCompleted], counts[job.JobStatusFailed],
		counts[job.JobStatusPending], counts[job.JobStatusProcessing])
	return nil
}

// outcomeSummary returns the job's result, or its error, cut to the report column width.
func outcomeSummary(j *job.Job) string {
	var s string
	switch {
	case len(j.Result) > 0:
		s = string(j.Result)
	case j.Error != nil:
		s = *j.Error
	}

	runes := []rune(s)
	if len(runes) > resultColumnWidth {
		return string(runes[:resultColumnWidth])
	}
	return s
}
