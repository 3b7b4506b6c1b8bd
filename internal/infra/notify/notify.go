// Package notify delivers one notification per lifecycle operation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
)

// Field keys with special formatting.
const (
	FieldSize = "size"
)

// Message is the JSON body posted to the webhook.
type Message struct {
	Title  string            `json:"title"`
	Status model.Status      `json:"status"`
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
	SentAt time.Time         `json:"sent_at"`
}

// Webhook posts notifications as JSON. Delivery happens in the background;
// Notify never blocks on the sink and failures are only logged.
type Webhook struct {
	url        string
	httpClient *http.Client
	wg         sync.WaitGroup
}

var _ repository.Notifier = (*Webhook)(nil)

// NewWebhook creates a webhook notifier for url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *Webhook) Notify(ctx context.Context, title string, status model.Status, fields map[string]string) {
	msg := buildMessage(title, status, fields)
	body, err := json.Marshal(msg)
	if err != nil {
		log.Warn("[Notify] Failed to encode notification", "title", title, "error", err)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.httpClient.Timeout)
		defer cancel()
		if err := w.post(sendCtx, body); err != nil {
			log.Warn("[Notify] Webhook delivery failed", "title", title, "error", err)
		}
	}()
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Flush waits for in-flight deliveries, at most until ctx is done. The CLI
// calls it before exiting.
func (w *Webhook) Flush(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Log writes notifications to the structured log. It is used when no webhook
// is configured.
type Log struct{}

var _ repository.Notifier = Log{}

func (Log) Notify(_ context.Context, title string, status model.Status, fields map[string]string) {
	msg := buildMessage(title, status, fields)
	args := []any{"status", status}
	for _, k := range sortedKeys(msg.Fields) {
		args = append(args, k, msg.Fields[k])
	}
	if status == model.StatusSuccess || status == model.StatusPlanned {
		log.Info("[Notify] "+msg.Text, args...)
	} else {
		log.Warn("[Notify] "+msg.Text, args...)
	}
}

// New returns the webhook notifier when url is set, the log notifier otherwise.
func New(url string) repository.Notifier {
	if url == "" {
		return Log{}
	}
	return NewWebhook(url)
}

func buildMessage(title string, status model.Status, fields map[string]string) Message {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	if raw, ok := out[FieldSize]; ok {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			out[FieldSize] = humanize.Bytes(n)
		}
	}
	return Message{
		Title:  title,
		Status: status,
		Text:   fmt.Sprintf("%s %s %s", statusIcon(status), title, status),
		Fields: out,
		SentAt: time.Now().UTC(),
	}
}

func statusIcon(status model.Status) string {
	switch status {
	case model.StatusSuccess:
		return "[OK]"
	case model.StatusPartial:
		return "[WARN]"
	case model.StatusPlanned:
		return "[PLAN]"
	default:
		return "[FAIL]"
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
