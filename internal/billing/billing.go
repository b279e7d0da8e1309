// Package billing funds developer balances through Stripe. A top-up
// creates a PaymentIntent tagged with the developer's account; the
// ledger is only credited when Stripe confirms the payment through the
// signed webhook.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"

	"github.com/Obagson/code-nest/internal/logging"
	"github.com/Obagson/code-nest/internal/metrics"
)

// metadataAccountKey carries the developer account on the PaymentIntent
// so the webhook can route the credit.
const metadataAccountKey = "developer_account"

var (
	ErrAmountOutOfRange = errors.New("top-up amount out of range")
	ErrNotConfigured    = errors.New("billing is not configured")
)

// Depositor credits a developer's available balance.
type Depositor interface {
	Deposit(ctx context.Context, account string, amountCents int64, reference string) error
}

// Service creates Stripe top-ups and applies confirmed payments to the
// ledger.
type Service struct {
	deposits      Depositor
	minCents      int64
	maxCents      int64
	webhookSecret string
	configured    bool
}

// NewService creates a billing service. secretKey may be empty, in which
// case top-up creation is disabled but webhook processing still compiles
// out of the router.
func NewService(deposits Depositor, secretKey, webhookSecret string, minCents, maxCents int64) *Service {
	if secretKey != "" {
		stripe.Key = secretKey
	}
	return &Service{
		deposits:      deposits,
		minCents:      minCents,
		maxCents:      maxCents,
		webhookSecret: webhookSecret,
		configured:    secretKey != "",
	}
}

// Configured reports whether a Stripe secret key is set.
func (s *Service) Configured() bool {
	return s.configured
}

// WebhookSecret returns the endpoint signing secret.
func (s *Service) WebhookSecret() string {
	return s.webhookSecret
}

// TopUp holds the client-side handles for a created PaymentIntent.
type TopUp struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	AmountCents     int64  `json:"amountCents"`
}

// CreateTopUp creates a PaymentIntent for the given account and amount.
// The balance is not credited here; that happens when the webhook
// reports the intent succeeded.
func (s *Service) CreateTopUp(ctx context.Context, account string, amountCents int64) (*TopUp, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if amountCents < s.minCents || amountCents > s.maxCents {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrAmountOutOfRange, amountCents, s.minCents, s.maxCents)
	}
	account = strings.ToLower(strings.TrimSpace(account))

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
	}
	params.AddMetadata(metadataAccountKey, account)

	pi, err := paymentintent.New(params)
	if err != nil {
		metrics.TopUpsTotal.WithLabelValues("create_failed").Inc()
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	metrics.TopUpsTotal.WithLabelValues("initiated").Inc()
	logging.L(ctx).Info("top-up initiated",
		"account", account, "amount_cents", amountCents, "payment_intent", pi.ID)
	return &TopUp{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		AmountCents:     amountCents,
	}, nil
}

// ProcessEvent applies a verified Stripe event. Succeeded intents credit
// the tagged account; everything else is acknowledged and dropped.
func (s *Service) ProcessEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		account := pi.Metadata[metadataAccountKey]
		if account == "" {
			logging.L(ctx).Warn("payment intent without account metadata", "payment_intent", pi.ID)
			return nil
		}
		if err := s.deposits.Deposit(ctx, account, pi.Amount, "stripe:"+pi.ID); err != nil {
			metrics.TopUpsTotal.WithLabelValues("credit_failed").Inc()
			return fmt.Errorf("credit balance: %w", err)
		}
		metrics.TopUpsTotal.WithLabelValues("succeeded").Inc()
		logging.L(ctx).Info("top-up credited",
			"account", account, "amount_cents", pi.Amount, "payment_intent", pi.ID)

	case "payment_intent.payment_failed":
		metrics.TopUpsTotal.WithLabelValues("failed").Inc()
		logging.L(ctx).Warn("top-up payment failed", "event", event.ID)

	default:
		logging.L(ctx).Debug("ignoring stripe event", "type", event.Type)
	}
	return nil
}
