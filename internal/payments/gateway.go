package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// IntentRequest is what the gateway needs to open a payment for an order.
type IntentRequest struct {
	OrderID     string
	BuyerID     string
	AmountCents int64
	Currency    string
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Gateway opens payment intents with an external processor. The processor
// reports the outcome later through the webhook.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

// LocalGateway issues deterministic intents without talking to a processor.
// The same order and amount always produce the same intent id.
type LocalGateway struct {
	key []byte
}

func NewLocalGateway(key string) *LocalGateway {
	return &LocalGateway{key: []byte(key)}
}

func (g *LocalGateway) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	id := "pi_" + g.sign(req.OrderID, req.Currency, req.AmountCents)[:24]
	return &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + g.sign(id)[:16],
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
	}, nil
}

func (g *LocalGateway) sign(parts ...any) string {
	mac := hmac.New(sha256.New, g.key)
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			mac.Write([]byte(v))
		case int64:
			var b [8]byte
			for i := range b {
				b[i] = byte(v >> (8 * i))
			}
			mac.Write(b[:])
		}
		mac.Write([]byte{0})
	}
	return hex.EncodeToString(mac.Sum(nil))
}
