package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookConfig holds the list of configured webhook URLs.
type WebhookConfig struct {
	URLs       []string
	Timeout    time.Duration
	MaxRetries int
}

// WebhookNotifier sends HTTP POST notifications to configured webhook URLs.
type WebhookNotifier struct {
	config  WebhookConfig
	client  *http.Client
	logger  logrus.FieldLogger
	backoff time.Duration
	wg      sync.WaitGroup
}

// NewWebhookNotifier creates a webhook notifier. Returns nil if no URLs are configured.
func NewWebhookNotifier(cfg *WebhookConfig, logger logrus.FieldLogger) *WebhookNotifier {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil
	}
	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return &WebhookNotifier{
		config:  c,
		client:  &http.Client{Timeout: c.Timeout},
		logger:  logger,
		backoff: time.Second,
	}
}

// Notify sends n to all configured webhook URLs.
// Runs asynchronously; does not block the caller.
func (wn *WebhookNotifier) Notify(_ context.Context, n Notification) error {
	if wn == nil {
		return nil
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	wn.wg.Add(1)
	go func() {
		defer wn.wg.Done()
		wn.send(n, data)
	}()
	return nil
}

// Wait blocks until all pending deliveries are done.
func (wn *WebhookNotifier) Wait() {
	if wn == nil {
		return
	}
	wn.wg.Wait()
}

// send delivers the encoded notification to all configured URLs.
func (wn *WebhookNotifier) send(n Notification, data []byte) {
	for _, url := range wn.config.URLs {
		entry := wn.logger.WithFields(logrus.Fields{"url": url, "id": n.ID})
		if err := wn.post(url, data); err != nil {
			entry.WithError(err).Warn("webhook: delivery failed")
		} else {
			entry.Debug("webhook: delivered")
		}
	}
}

// post sends a single webhook POST with retry.
func (wn *WebhookNotifier) post(url string, data []byte) error {
	var lastErr error
	for attempt := 0; attempt <= wn.config.MaxRetries; attempt++ {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "geosync/1.0")

		resp, err := wn.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * wn.backoff)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr // don't retry 4xx
		}
		time.Sleep(time.Duration(attempt+1) * wn.backoff)
	}

	return lastErr
}
