package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Pusher delivers a notice to a device push token.
type Pusher interface {
	Push(ctx context.Context, token string, n Notice) error
}

// Gateway posts notices to an HTTP push gateway. With no URL configured
// it only logs.
type Gateway struct {
	URL    string
	Token  string
	Client *http.Client
	Log    logrus.FieldLogger
}

func NewGateway(url, token string, log logrus.FieldLogger) *Gateway {
	return &Gateway{URL: url, Token: token, Client: &http.Client{Timeout: 10 * time.Second}, Log: log}
}

type pushSendBody struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func (g *Gateway) Push(ctx context.Context, token string, n Notice) error {
	if g.URL == "" {
		g.Log.WithFields(logrus.Fields{"type": n.Type, "user_id": n.UserID}).Info("push gateway not configured, notice logged only")
		return nil
	}

	payload := pushSendBody{
		To:    token,
		Title: n.Title,
		Body:  n.Body,
		Data:  map[string]string{"type": n.Type, "reference": n.Reference},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if len(body) > 0 {
			return fmt.Errorf("push send failed: status=%d body=%s", resp.StatusCode, body)
		}
		return fmt.Errorf("push send failed: status=%d", resp.StatusCode)
	}
	return nil
}
