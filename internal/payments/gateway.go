package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Gateway payment-intent statuses as reported by Stripe.
const (
	IntentSucceeded      = "succeeded"
	IntentRequiresAction = "requires_action"
	IntentProcessing     = "processing"
	IntentCanceled       = "canceled"
)

// PaymentIntent is the slice of the gateway object the coordinator needs.
type PaymentIntent struct {
	ID       string
	Status   string
	Amount   float64
	Metadata map[string]string
}

// Gateway exposes the synchronous "retrieve payment status by reference"
// call. Card processing itself lives entirely on the gateway's side.
type Gateway interface {
	RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
}

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeClient retrieves payment intents over the Stripe REST API.
type StripeClient struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewStripeClient returns a StripeClient authenticated with the secret key.
func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{
		secretKey: secretKey,
		baseURL:   stripeAPIBase,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// stripeIntent is the wire shape; amount is in cents.
type stripeIntent struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   int64             `json:"amount"`
	Metadata map[string]string `json:"metadata"`
}

// RetrievePaymentIntent fetches a payment intent by id.
func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	endpoint := fmt.Sprintf("%s/payment_intents/%s", c.baseURL, url.PathEscape(paymentIntentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, paymentIntentID)
	}

	var intent stripeIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return &PaymentIntent{
		ID:       intent.ID,
		Status:   intent.Status,
		Amount:   float64(intent.Amount) / 100,
		Metadata: intent.Metadata,
	}, nil
}
