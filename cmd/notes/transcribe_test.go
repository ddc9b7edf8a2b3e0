package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-notes/internal/bus"
	"github.com/loqalabs/loqa-notes/internal/config"
	"github.com/loqalabs/loqa-notes/internal/natsserver"
	"github.com/loqalabs/loqa-notes/internal/protocol"
	"github.com/nats-io/nats.go"
)

// fakeDaemon accepts every run and immediately reports it with status.
func fakeDaemon(t *testing.T, client *bus.Client, status string) {
	t.Helper()
	sub, err := client.Conn().Subscribe(protocol.SubjectTranscribeRequest, func(msg *nats.Msg) {
		var req protocol.TranscribeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		ack, _ := json.Marshal(protocol.TranscribeAck{RunID: req.RunID, Accepted: true})
		_ = msg.Respond(ack)
		_ = client.PublishJSON(protocol.SubjectTranscriptDone, protocol.RunStatus{
			RunID:     req.RunID,
			Status:    status,
			Timestamp: time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestTranscribeRemoteOutcome(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		status string
		want   error
	}{
		{status: "completed", want: nil},
		{status: "cancelled", want: errCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
			if err != nil {
				t.Fatalf("start nats: %v", err)
			}
			t.Cleanup(srv.Shutdown)
			client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, log)
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			t.Cleanup(client.Close)
			fakeDaemon(t, client, tc.status)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = transcribeRemote(ctx, client, filepath.Join(t.TempDir(), "note.wav"), "en", transcribeFlags{})
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
