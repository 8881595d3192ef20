package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/samber/do"

	"ghiblify/internal/log"
)

// Confirmation is the outcome of a checkout session as reported by the
// payment collaborator.
type Confirmation struct {
	SessionID string
	Plan      Plan
	Paid      bool
}

// Verifier confirms a checkout session with the payment collaborator.
type Verifier interface {
	Verify(ctx context.Context, sessionID string) (Confirmation, error)
}

const checkoutSessionURL = "https://api.stripe.com/v1/checkout/sessions/"

// StripeVerifier retrieves the checkout session and reads the plan from
// its metadata. The session id is the idempotency handle for the grant.
type StripeVerifier struct {
	Client *http.Client
	Key    string
	URL    string
}

func NewStripeVerifier(i *do.Injector) (Verifier, error) {
	return &StripeVerifier{
		Client: do.MustInvoke[*http.Client](i),
		Key:    do.MustInvokeNamed[string](i, "stripe_key"),
		URL:    checkoutSessionURL,
	}, nil
}

type checkoutSession struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"payment_status"`
	Metadata      struct {
		PlanID string `json:"planId"`
	} `json:"metadata"`
}

func (v *StripeVerifier) Verify(ctx context.Context, sessionID string) (Confirmation, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("stripe").With("session", sessionID)
	logger.Info("verifying checkout session")

	url := v.URL
	if url == "" {
		url = checkoutSessionURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+sessionID, nil)
	if err != nil {
		return Confirmation{}, err
	}
	req.Header.Set("Authorization", "Bearer "+v.Key)

	resp, err := v.Client.Do(req)
	if err != nil {
		return Confirmation{}, fmt.Errorf("retrieving checkout session: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Confirmation{}, err
	}
	if resp.StatusCode >= 400 {
		return Confirmation{}, fmt.Errorf("checkout session lookup returned status %d", resp.StatusCode)
	}

	var session checkoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return Confirmation{}, fmt.Errorf("decoding checkout session: %w", err)
	}

	return Confirmation{
		SessionID: session.ID,
		Plan:      Plan(session.Metadata.PlanID),
		Paid:      session.PaymentStatus == "paid",
	}, nil
}
