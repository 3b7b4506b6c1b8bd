package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lifecycle-agent/internal/domain/model"
)

func TestWebhookPostsMessage(t *testing.T) {
	got := make(chan Message, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- msg
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	w.Notify(context.Background(), "backup shop", model.StatusPartial, map[string]string{
		"failed":  "1",
		FieldSize: "2048",
	})

	select {
	case msg := <-got:
		if msg.Status != model.StatusPartial || msg.Title != "backup shop" {
			t.Errorf("message = %+v", msg)
		}
		if msg.Fields[FieldSize] != "2.0 kB" {
			t.Errorf("size field = %q", msg.Fields[FieldSize])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not called")
	}
	w.Flush(context.Background())
}

func TestWebhookDoesNotBlockOnUnreachableSink(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	w := NewWebhook(srv.URL)
	start := time.Now()
	w.Notify(context.Background(), "restore", model.StatusFailed, nil)
	if time.Since(start) > time.Second {
		t.Fatal("Notify blocked on the sink")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Flush(ctx)
}

func TestNewSelectsSink(t *testing.T) {
	if _, ok := New("").(Log); !ok {
		t.Error("empty url did not select the log notifier")
	}
	if _, ok := New("http://hooks.local/x").(*Webhook); !ok {
		t.Error("url did not select the webhook notifier")
	}
}
