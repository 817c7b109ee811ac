package scheduler

import (
	"context"
	"fmt"

	"crm_pipeline_backend/internal/reactivation"
	"crm_pipeline_backend/platform/config"
	"crm_pipeline_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sweep  *reactivation.Sweep
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweep *reactivation.Sweep, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		sweep:  sweep,
		log:    log,
	}

	mux.HandleFunc(TaskReactivationSweep, w.handleReactivationSweep)

	return w, nil
}

func (w *Worker) handleReactivationSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReactivationSweepPayload(task)
	if err != nil {
		return err
	}

	w.log.Info("reactivation sweep started", "requested_by", payload.RequestedBy)

	report, err := w.sweep.Run(ctx)
	if err != nil {
		return err
	}

	w.log.Info("reactivation sweep finished",
		"requested_by", payload.RequestedBy,
		"scanned", report.Scanned,
		"created", report.Created,
	)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
