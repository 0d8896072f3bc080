// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// Default task options for reset notices.
const (
	DefaultMaxRetry    = 5
	DefaultTaskTimeout = 30 * time.Second
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer implements auth.ResetNotifier by queueing a TypePasswordReset task.
type Enqueuer struct {
	client   TaskEnqueuer
	maxRetry int
	logger   *slog.Logger
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(client TaskEnqueuer, logger *slog.Logger) (*Enqueuer, error) {
	if client == nil {
		return nil, oops.Code("NOTIFY_INVALID").Errorf("task client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enqueuer{client: client, maxRetry: DefaultMaxRetry, logger: logger}, nil
}

// NotifyPasswordReset enqueues notice for the worker.
func (e *Enqueuer) NotifyPasswordReset(ctx context.Context, notice auth.ResetNotice) error {
	task, noticeID, err := NewPasswordResetTask(notice)
	if err != nil {
		return err
	}

	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(e.maxRetry),
		asynq.Timeout(DefaultTaskTimeout),
		asynq.TaskID(noticeID),
	)
	if err != nil {
		return oops.Code("NOTIFY_ENQUEUE_FAILED").
			With("user_id", notice.UserID).
			With("notice_id", noticeID).
			Wrap(auth.Unavailable(err))
	}

	e.logger.InfoContext(ctx, "password reset notice enqueued",
		"user_id", notice.UserID,
		"notice_id", noticeID,
		"queue", info.Queue,
	)
	return nil
}

// DirectNotifier implements auth.ResetNotifier by mailing synchronously.
// It is used when no queue is configured.
type DirectNotifier struct {
	mailer Mailer
	logger *slog.Logger
}

// NewDirectNotifier creates a DirectNotifier.
func NewDirectNotifier(mailer Mailer, logger *slog.Logger) (*DirectNotifier, error) {
	if mailer == nil {
		return nil, oops.Code("NOTIFY_INVALID").Errorf("mailer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectNotifier{mailer: mailer, logger: logger}, nil
}

// NotifyPasswordReset mails notice immediately.
func (d *DirectNotifier) NotifyPasswordReset(ctx context.Context, notice auth.ResetNotice) error {
	if err := d.mailer.Send(ctx, ResetMessage(notice)); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").With("user_id", notice.UserID).Wrap(err)
	}
	d.logger.InfoContext(ctx, "password reset notice sent", "user_id", notice.UserID)
	return nil
}

var (
	_ auth.ResetNotifier = (*Enqueuer)(nil)
	_ auth.ResetNotifier = (*DirectNotifier)(nil)
)
