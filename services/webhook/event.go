package webhook

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v83"
)

const (
	providerStripe = "stripe"

	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// The payload structs below decode only the fields the reconciler acts
// on, straight from the event's raw object. Decoding per event type
// keeps a malformed object of one shape from being misread as another.

type checkoutSessionPayload struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

func (p subscriptionPayload) periodEnd() *time.Time {
	if p.CurrentPeriodEnd == 0 {
		return nil
	}
	t := time.Unix(p.CurrentPeriodEnd, 0)
	return &t
}

type invoicePayload struct {
	Subscription string `json:"subscription"`
	Customer     string `json:"customer"`
	PeriodEnd    int64  `json:"period_end"`
}

func (p invoicePayload) periodEnd() *time.Time {
	if p.PeriodEnd == 0 {
		return nil
	}
	t := time.Unix(p.PeriodEnd, 0)
	return &t
}

func decodePayload[T any](ev stripe.Event) (*T, error) {
	var out T
	if err := json.Unmarshal(ev.Data.Raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
