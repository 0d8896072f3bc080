// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// Message is an outbound mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends a Message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ResetMessage renders the mail that carries a reset token.
func ResetMessage(notice auth.ResetNotice) Message {
	var b strings.Builder
	b.WriteString("A password reset was requested for your account.\n\n")
	fmt.Fprintf(&b, "Reset token: %s\n", notice.Token)
	fmt.Fprintf(&b, "The token expires at %s and can be used once.\n", notice.ExpiresAt.UTC().Format(time.RFC3339))
	b.WriteString("If you did not request a reset, ignore this message.\n")
	return Message{
		To:      notice.Email,
		Subject: "Password reset",
		Body:    b.String(),
	}
}

// WriterMailer writes each message to an io.Writer. It stands in for SMTP in
// development: point it at stdout to read reset tokens.
type WriterMailer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterMailer creates a WriterMailer.
func NewWriterMailer(w io.Writer) *WriterMailer {
	return &WriterMailer{w: w}
}

// Send writes msg.
func (m *WriterMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := fmt.Fprintf(m.w, "To: %s\nSubject: %s\n\n%s\n", msg.To, msg.Subject, msg.Body)
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("to", msg.To).Wrap(err)
	}
	return nil
}
