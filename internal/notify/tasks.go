// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package notify delivers password-reset notices out of band, either through
// an asynq queue drained by the worker or directly through a Mailer.
package notify

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

const (
	// QueueDefault is the queue reset notices are enqueued on.
	QueueDefault = "default"

	// TypePasswordReset is the asynq task type of a reset notice.
	TypePasswordReset = "account:password_reset"
)

// PasswordResetPayload is the task body of TypePasswordReset.
type PasswordResetPayload struct {
	NoticeID  string    `json:"notice_id"`
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notice converts the payload back to the domain notice.
func (p PasswordResetPayload) Notice() auth.ResetNotice {
	return auth.ResetNotice{
		UserID:    p.UserID,
		Email:     p.Email,
		Token:     p.Token,
		ExpiresAt: p.ExpiresAt,
	}
}

// NewPasswordResetTask builds the task for notice. Each task gets a fresh
// notice id, used as the asynq task id.
func NewPasswordResetTask(notice auth.ResetNotice) (*asynq.Task, string, error) {
	payload := PasswordResetPayload{
		NoticeID:  ulid.Make().String(),
		UserID:    notice.UserID,
		Email:     notice.Email,
		Token:     notice.Token,
		ExpiresAt: notice.ExpiresAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", oops.Code("NOTIFY_TASK_INVALID").With("user_id", notice.UserID).Wrap(err)
	}
	return asynq.NewTask(TypePasswordReset, data), payload.NoticeID, nil
}

// ParsePasswordResetPayload decodes a TypePasswordReset task body.
func ParsePasswordResetPayload(t *asynq.Task) (PasswordResetPayload, error) {
	var p PasswordResetPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, oops.Code("NOTIFY_PAYLOAD_INVALID").With("task_type", t.Type()).Wrap(err)
	}
	if p.UserID <= 0 || p.Email == "" || p.Token == "" {
		return p, oops.Code("NOTIFY_PAYLOAD_INVALID").
			With("task_type", t.Type()).
			Errorf("payload is missing user_id, email or token")
	}
	return p, nil
}
