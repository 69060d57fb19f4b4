// Package bus publishes job progress events over NATS. The HTTP status
// endpoint stays the external contract; the bus exists so observers can
// wake on stage transitions instead of polling the pipeline.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/podcast"
)

// Client wraps a NATS connection with the helpers this service needs.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("papercastd"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))
	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// PublishProgress broadcasts one job stage transition. Failures are
// logged, never propagated: the bus is advisory and must not disturb the
// pipeline.
func (c *Client) PublishProgress(evt podcast.ProgressEvent) {
	if c == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		c.log.Warn("failed to marshal progress event", slog.String("error", err.Error()))
		return
	}
	if err := c.conn.Publish(podcast.SubjectJobProgress, data); err != nil {
		c.log.Warn("failed to publish progress event", slog.String("error", err.Error()))
	}
}
