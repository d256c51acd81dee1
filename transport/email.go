package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gridbase/automations/automation"
	"github.com/gridbase/automations/internal/logger"
)

// EmailSubject is the NATS subject outbound mail jobs are published on. A
// separate delivery worker owns SMTP; the engine only hands off the message.
const EmailSubject = "automations.email"

// NATSEmailPublisher implements automation.EmailSender by publishing the
// message as JSON to a NATS subject. Delivery is asynchronous: a publish
// that NATS accepts counts as success for the action.
type NATSEmailPublisher struct {
	conn *nats.Conn
}

// ConnectEmailPublisher dials NATS and returns a publisher. Reconnects are
// handled by the client with unlimited retries.
func ConnectEmailPublisher(url string) (*NATSEmailPublisher, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSEmailPublisher{conn: conn}, nil
}

// NewNATSEmailPublisher wraps an existing connection.
func NewNATSEmailPublisher(conn *nats.Conn) *NATSEmailPublisher {
	return &NATSEmailPublisher{conn: conn}
}

func (p *NATSEmailPublisher) SendEmail(ctx context.Context, msg automation.EmailMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email message: %w", err)
	}
	if err := p.conn.Publish(EmailSubject, payload); err != nil {
		return fmt.Errorf("failed to publish email to %s: %w", EmailSubject, err)
	}
	logger.Debug("email queued", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Close drains the connection so queued publishes are flushed.
func (p *NATSEmailPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
