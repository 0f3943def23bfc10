// Package mailer renders notification templates and hands the result to an
// SMTP server.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// Message is a rendered e-mail ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers one message synchronously. A returned error means the
// message may not have been accepted and the caller should retry later.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

var ErrNoRecipient = errors.New("mailer: no recipient")

// cleanSubject strips CR/LF so a subject cannot inject headers.
func cleanSubject(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// RateLimited wraps a Mailer so at most perSecond messages are sent each second.
// A non-positive rate returns next unchanged.
func RateLimited(next Mailer, perSecond float64) Mailer {
	if perSecond <= 0 {
		return next
	}
	burst := max(int(perSecond), 1)
	return &limitedMailer{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

type limitedMailer struct {
	next    Mailer
	limiter *rate.Limiter
}

func (m *limitedMailer) Send(ctx context.Context, msg *Message) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}
	return m.next.Send(ctx, msg)
}
