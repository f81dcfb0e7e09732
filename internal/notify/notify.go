package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Message struct {
	Phone      string `json:"phone"`
	Text       string `json:"text"`
	Attachment string `json:"attachment,omitempty"`
}

// Notifier delivers a receipt message to the customer. Delivery is best
// effort; callers must never fail a committed sale on a notify error.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type Noop struct{}

func (Noop) Notify(_ context.Context, _ Message) error {
	return nil
}

// Gateway posts messages to an external WhatsApp gateway over HTTP.
type Gateway struct {
	client  *http.Client
	baseURL string
}

func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

func (g *Gateway) Notify(ctx context.Context, msg Message) error {
	if msg.Phone == "" {
		return fmt.Errorf("phone required")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}
