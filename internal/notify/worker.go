// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/accountd/accountd/pkg/errutil"
)

// Delivery outcomes recorded by ResetHandler.
const (
	ResultSent    = "sent"
	ResultExpired = "expired"
	ResultInvalid = "invalid"
	ResultFailed  = "failed"
)

// ResetHandler processes TypePasswordReset tasks.
type ResetHandler struct {
	mailer     Mailer
	now        func() time.Time
	logger     *slog.Logger
	deliveries *prometheus.CounterVec
}

// HandlerOption configures a ResetHandler.
type HandlerOption func(*ResetHandler)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *ResetHandler) { h.now = now }
}

// WithDeliveryCounter records each outcome on c, labelled by result.
func WithDeliveryCounter(c *prometheus.CounterVec) HandlerOption {
	return func(h *ResetHandler) { h.deliveries = c }
}

// NewResetHandler creates a ResetHandler.
func NewResetHandler(mailer Mailer, logger *slog.Logger, opts ...HandlerOption) (*ResetHandler, error) {
	if mailer == nil {
		return nil, oops.Code("NOTIFY_INVALID").Errorf("mailer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &ResetHandler{mailer: mailer, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried;
// notices whose token already expired are dropped.
func (h *ResetHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := ParsePasswordResetPayload(t)
	if err != nil {
		h.record(ResultInvalid)
		h.logger.WarnContext(ctx, "dropping malformed reset notice", "error", err)
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	if !h.now().Before(payload.ExpiresAt) {
		h.record(ResultExpired)
		h.logger.InfoContext(ctx, "dropping expired reset notice",
			"user_id", payload.UserID,
			"notice_id", payload.NoticeID,
		)
		return nil
	}

	if err := h.mailer.Send(ctx, ResetMessage(payload.Notice())); err != nil {
		h.record(ResultFailed)
		return oops.Code("NOTIFY_SEND_FAILED").
			With("user_id", payload.UserID).
			With("notice_id", payload.NoticeID).
			Wrap(err)
	}

	h.record(ResultSent)
	h.logger.InfoContext(ctx, "password reset notice delivered",
		"user_id", payload.UserID,
		"notice_id", payload.NoticeID,
	)
	return nil
}

func (h *ResetHandler) record(result string) {
	if h.deliveries != nil {
		h.deliveries.WithLabelValues(result).Inc()
	}
}

// WorkerConfig collects what the worker needs to start.
type WorkerConfig struct {
	Redis       asynq.RedisClientOpt
	Concurrency int
	Handler     *ResetHandler
	Logger      *slog.Logger
}

// Worker drains the reset notice queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Handler == nil {
		return nil, oops.Code("NOTIFY_INVALID").Errorf("reset handler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueDefault: 1},
		Logger:      asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			errutil.LogError(ctx, logger, "task failed", err, "task_type", t.Type())
		}),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypePasswordReset, cfg.Handler)

	return &Worker{server: srv, mux: mux, logger: logger}, nil
}

// Run processes tasks until ctx is cancelled, then shuts the server down
// and waits for in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return oops.Code("WORKER_START_FAILED").Wrap(err)
	}
	w.logger.InfoContext(ctx, "worker started", "queue", QueueDefault)

	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return nil
}

// asynqLogger adapts slog to asynq.Logger.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
