package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Handler processes one task type
type Handler func(ctx context.Context, t *asynq.Task) error

// Worker consumes the cache queue. It runs inside the API process since the
// caches it invalidates live in that process's memory.
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger zerolog.Logger
}

func NewWorker(redisAddr string, concurrency int, logger zerolog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 2
	}
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCache: 1,
		},
		Logger:   asynqLogger{logger.With().Str("component", "asynq").Logger()},
		LogLevel: asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn().Err(err).
				Str("task", t.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("task failed")
		}),
	})
	return &Worker{srv: srv, mux: asynq.NewServeMux(), logger: logger}
}

func (w *Worker) Handle(taskType string, h Handler) {
	w.mux.HandleFunc(taskType, h)
}

// Start begins processing in the background
func (w *Worker) Start() error {
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	w.logger.Info().Str("queue", QueueCache).Msg("worker running")
	return nil
}

// Shutdown waits for active tasks and stops the worker
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

// asynqLogger routes asynq's own logs through zerolog
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
