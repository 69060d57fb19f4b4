package bus

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/podcast"
)

func TestEmbeddedServerAndProgressEvents(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.BusConfig{
		Enabled:        true,
		Embedded:       true,
		Port:           -1, // random free port
		ConnectTimeout: 2000,
	}
	server, err := StartEmbedded(cfg, log)
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	defer server.Shutdown()

	cfg.Servers = []string{server.ClientURL()}
	client, err := Connect(cfg, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if !client.Healthy() {
		t.Fatal("client not healthy after connect")
	}

	received := make(chan podcast.ProgressEvent, 1)
	sub, err := client.Conn().Subscribe(podcast.SubjectJobProgress, func(msg *nats.Msg) {
		var evt podcast.ProgressEvent
		if err := json.Unmarshal(msg.Data, &evt); err == nil {
			received <- evt
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	client.PublishProgress(podcast.ProgressEvent{
		JobID:       "job-1",
		Stage:       "parsing",
		ProgressPct: 5,
		Message:     "Parsing document",
		Timestamp:   time.Now().UTC(),
	})

	select {
	case evt := <-received:
		if evt.JobID != "job-1" || evt.Stage != "parsing" || evt.ProgressPct != 5 {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("progress event not received")
	}
}

func TestStartEmbeddedDisabled(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	server, err := StartEmbedded(config.BusConfig{Embedded: false}, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if server != nil {
		t.Fatal("expected nil server when embedded mode is off")
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var client *Client
	client.PublishProgress(podcast.ProgressEvent{JobID: "job-1"})
	client.Close()
	if client.Healthy() {
		t.Fatal("nil client reported healthy")
	}
}
