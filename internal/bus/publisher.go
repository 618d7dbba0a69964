// Package bus publishes final transcripts on NATS for downstream
// consumers.
package bus

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shaynemei/sherpa/internal/config"
)

// Transcript is the message emitted per decoded file.
type Transcript struct {
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
}

// Client wraps a NATS connection with the single helper this tool needs.
type Client struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

func Connect(cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("sherpa-offline"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, subject: cfg.Subject, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.conn.Drain()
	c.conn.Close()
}

// PublishTranscript emits one transcript message. Failures are reported to
// the caller but never affect the printed results.
func (c *Client) PublishTranscript(t Transcript) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := c.conn.Publish(c.subject, data); err != nil {
		return fmt.Errorf("publish transcript: %w", err)
	}
	return nil
}
