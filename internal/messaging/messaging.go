// Package messaging sends outbound replies to the conversational channel
// vendor. The vendor SDK itself is out of scope (spec.md §1) — this package
// makes the one HTTP call its send API needs.
//
// Grounded on the teacher's internal/exchange/client.go: a resty.Client
// built once with base URL, timeout, and retry count, auth applied via a
// header set on the client, and every call going through R().SetContext(ctx).
package messaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Sender delivers a reply to a phone number via the vendor's send API.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Config holds the vendor credentials (internal/config.MessagingConfig).
type Config struct {
	SendURL  string
	APIKey   string
	APISecret string
	SenderID string
}

// restySender is the production Sender.
type restySender struct {
	client  *resty.Client
	senderID string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSender builds a Sender backed by resty, rate-limited to avoid
// tripping the vendor's send-rate cap.
func NewSender(cfg Config, logger *slog.Logger) Sender {
	client := resty.New().
		SetBaseURL(cfg.SendURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Authorization", "Basic "+basicAuth(cfg.APIKey, cfg.APISecret))

	return &restySender{
		client:   client,
		senderID: cfg.SenderID,
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		logger:   logger.With("component", "messaging"),
	}
}

func basicAuth(key, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", key, secret)))
}

// Send posts a text message to the vendor's API.
func (s *restySender) Send(ctx context.Context, to, body string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("messaging rate limit: %w", err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"From": s.senderID,
			"To":   to,
			"Body": body,
		}).
		Post("/Messages")
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send message: vendor returned status %d", resp.StatusCode())
	}
	return nil
}

// NoopSender discards messages — used in dry-run mode (spec.md's DryRun
// config flag) so the engine can be exercised without a real vendor account.
type NoopSender struct{ Logger *slog.Logger }

func (n NoopSender) Send(ctx context.Context, to, body string) error {
	if n.Logger != nil {
		n.Logger.Info("dry-run: would send message", "to", to, "body", body)
	}
	return nil
}
