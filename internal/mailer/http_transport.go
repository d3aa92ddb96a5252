package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/outboxlab/eventgate/internal/apperr"
)

// HTTPTransport delivers through an HTTP mail provider API, guarded by a
// circuit breaker so a down provider short-circuits instead of timing out on
// every entry in the batch.
type HTTPTransport struct {
	name    string
	url     string
	apiKey  string
	client  *http.Client
	breaker *sendBreaker
}

func NewHTTPTransport(name, url, apiKey string, timeout time.Duration, failThreshold int, openFor time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{
		name:    name,
		url:     url,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: newSendBreaker(failThreshold, openFor),
	}
}

func (t *HTTPTransport) Name() string { return t.name }

type httpSendRequest struct {
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name,omitempty"`
	To          string `json:"to"`
	ToName      string `json:"to_name,omitempty"`
	Subject     string `json:"subject"`
	HTMLBody    string `json:"html_body"`
	TextBody    string `json:"text_body,omitempty"`
}

func (t *HTTPTransport) Send(ctx context.Context, msg Message) error {
	if !t.breaker.tryAcquire() {
		return apperr.New(apperr.KindTransientSend, "mail provider circuit open",
			"provider", t.name, "to", msg.To)
	}

	if err := t.post(ctx, msg); err != nil {
		t.breaker.onFailure()
		return apperr.Wrap(err, apperr.KindTransientSend, "provider send failed",
			"provider", t.name, "to", msg.To)
	}

	t.breaker.onSuccess()
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(httpSendRequest{
		FromAddress: msg.FromAddress,
		FromName:    msg.FromName,
		To:          msg.To,
		ToName:      msg.ToName,
		Subject:     msg.Subject,
		HTMLBody:    msg.HTMLBody,
		TextBody:    msg.TextBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("provider=%s status=%d", t.name, res.StatusCode)
	}
	return nil
}
