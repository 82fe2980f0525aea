// Package notify delivers chat messages to clients and drivers. Sends are
// fire-and-forget: callers never see delivery errors.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultTelegramBaseURL = "https://api.telegram.org"

// Telegram posts messages through the Bot API sendMessage method on a
// background goroutine.
type Telegram struct {
	token      string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        logrus.FieldLogger
	wg         sync.WaitGroup
}

func NewTelegram(token, baseURL string, timeout time.Duration, log logrus.FieldLogger) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Telegram{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		log:        log,
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *Telegram) Notify(ctx context.Context, address, text string) {
	if address == "" {
		t.log.Debug("notification skipped: empty address")
		return
	}
	// The send outlives the request that triggered it.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		if err := t.Send(sendCtx, address, text); err != nil {
			t.log.WithError(err).WithField("chat_id", address).Warn("telegram send failed")
		}
	}()
}

// Send delivers one message synchronously.
func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return t.redact(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return t.redact(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram sendMessage: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// redact masks the bot token, which is part of the request path, in the URL
// carried by a transport error.
func (t *Telegram) redact(err error) error {
	var urlErr *url.Error
	if t.token == "" || !errors.As(err, &urlErr) {
		return err
	}
	urlErr.URL = strings.NewReplacer(url.PathEscape(t.token), "***", t.token, "***").Replace(urlErr.URL)
	return err
}

// Wait blocks until in-flight sends finish. Called on shutdown.
func (t *Telegram) Wait() {
	t.wg.Wait()
}

// LogOnly writes notifications to the log instead of delivering them.
type LogOnly struct {
	Log logrus.FieldLogger
}

func (l LogOnly) Notify(ctx context.Context, address, text string) {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{"address": address, "text": text}).Info("notification")
}
