package paymentgw

import (
	"context"

	"go.uber.org/fx"

	"creatorfund-core/pkg/config"
)

// Gateway abstracts the payment processor from the subscription service.
// Every get-or-create operation looks up an existing record by a stable
// correlation key before creating, so retries never duplicate external
// resources. Failures surface as retryable errutil.BadGateway errors and
// callers must not persist local state until a call chain fully succeeds.
type Gateway interface {
	// GetOrCreateCustomer correlates by email.
	GetOrCreateCustomer(ctx context.Context, email, name string) (string, error)
	// GetOrCreateProduct correlates by the tierId metadata tag.
	GetOrCreateProduct(ctx context.Context, tierID, name string) (string, error)
	// GetOrCreatePrice correlates by unit amount and billing interval on
	// the given product.
	GetOrCreatePrice(ctx context.Context, productID string, amountCents int64, interval string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	PauseSubscription(ctx context.Context, subscriptionID string) error
	ResumeSubscription(ctx context.Context, subscriptionID string) error
}

// CheckoutSessionParams carries everything the reconciler later needs to
// correlate the asynchronous event back to domain entities. Metadata is
// attached to both the session and its subscription-data block.
type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	Metadata   map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

var Module = fx.Module("paymentgw",
	fx.Provide(func(cfg *config.Config) Gateway {
		return NewStripeGateway(cfg)
	}),
)
