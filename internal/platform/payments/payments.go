package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/diagnosis/library-reservations/pkg/logger"
)

var ErrDisabled = errors.New("payments disabled (missing STRIPE_SECRET_KEY)")

// LateFee is a charge owed for returning a book after its return date.
type LateFee struct {
	ReservationID string
	UserID        string
	UserEmail     string
	AmountCents   int64
	Currency      string
	DaysLate      int
}

// Charge is the provider's record of a created late-fee payment.
type Charge struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"-"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type Gateway interface {
	ChargeLateFee(ctx context.Context, fee LateFee) (*Charge, error)
}

// intentCreator is the slice of the Stripe client used here.
type intentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type StripeGateway struct {
	intents intentCreator
}

func NewStripeGateway(secretKey string) *StripeGateway {
	sc := client.New(secretKey, nil)
	return &StripeGateway{intents: sc.PaymentIntents}
}

// ChargeLateFee creates a PaymentIntent the member settles at the desk or in
// the app. The reservation ID is the idempotency key, so a retried
// completion never double charges.
func (g *StripeGateway) ChargeLateFee(ctx context.Context, fee LateFee) (*Charge, error) {
	if fee.AmountCents <= 0 {
		return nil, fmt.Errorf("late fee must be positive, got %d", fee.AmountCents)
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(fee.AmountCents),
		Currency:    stripe.String(fee.Currency),
		Description: stripe.String(fmt.Sprintf("Late return fee (%d days)", fee.DaysLate)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if fee.UserEmail != "" {
		params.ReceiptEmail = stripe.String(fee.UserEmail)
	}
	params.Context = ctx
	params.SetIdempotencyKey("late-fee-" + fee.ReservationID)
	params.AddMetadata("reservation_id", fee.ReservationID)
	params.AddMetadata("user_id", fee.UserID)

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create late fee payment intent: %w", err)
	}

	return &Charge{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
	}, nil
}

// NoopGateway is used when no Stripe key is configured: fees are logged and
// reported as ErrDisabled.
type NoopGateway struct{}

func (NoopGateway) ChargeLateFee(ctx context.Context, fee LateFee) (*Charge, error) {
	logger.WarnContext(ctx, "Late fee not charged, payments disabled",
		"reservation_id", fee.ReservationID,
		"amount", fee.AmountCents,
	)
	return nil, ErrDisabled
}

// New picks the Stripe gateway when a key is present.
func New(secretKey string) Gateway {
	if secretKey == "" {
		return NoopGateway{}
	}
	return NewStripeGateway(secretKey)
}
