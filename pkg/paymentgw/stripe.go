package paymentgw

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v83"
	portalsession "github.com/stripe/stripe-go/v83/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/customer"
	"github.com/stripe/stripe-go/v83/price"
	"github.com/stripe/stripe-go/v83/product"
	"github.com/stripe/stripe-go/v83/subscription"
	"go.uber.org/zap"

	"creatorfund-core/pkg/config"
	"creatorfund-core/pkg/errutil"
)

const metadataTierID = "tierId"

// StripeGateway implements Gateway against the Stripe API. The key is held
// per client rather than on the package-global stripe.Key.
type StripeGateway struct {
	customers     customer.Client
	products      product.Client
	prices        price.Client
	sessions      checkoutsession.Client
	portals       portalsession.Client
	subscriptions subscription.Client

	successURL      string
	cancelURL       string
	portalReturnURL string
}

func NewStripeGateway(cfg *config.Config) *StripeGateway {
	backend := stripe.GetBackend(stripe.APIBackend)
	key := cfg.Stripe.SecretKey

	return &StripeGateway{
		customers:     customer.Client{B: backend, Key: key},
		products:      product.Client{B: backend, Key: key},
		prices:        price.Client{B: backend, Key: key},
		sessions:      checkoutsession.Client{B: backend, Key: key},
		portals:       portalsession.Client{B: backend, Key: key},
		subscriptions: subscription.Client{B: backend, Key: key},

		successURL:      cfg.Stripe.SuccessURL,
		cancelURL:       cfg.Stripe.CancelURL,
		portalReturnURL: cfg.Stripe.PortalReturnURL,
	}
}

func (g *StripeGateway) GetOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	listParams := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := g.customers.List(listParams)
	for iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", wrapStripeError("list customers", err)
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	c, err := g.customers.New(params)
	if err != nil {
		return "", wrapStripeError("create customer", err)
	}

	zap.L().Info("created billing customer", zap.String("customer_id", c.ID))
	return c.ID, nil
}

func (g *StripeGateway) GetOrCreateProduct(ctx context.Context, tierID, name string) (string, error) {
	searchParams := &stripe.ProductSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("active:'true' AND metadata['%s']:'%s'", metadataTierID, tierID),
		},
	}
	searchParams.Context = ctx

	iter := g.products.Search(searchParams)
	for iter.Next() {
		return iter.Product().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", wrapStripeError("search products", err)
	}

	params := &stripe.ProductParams{
		Name: stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata(metadataTierID, tierID)

	p, err := g.products.New(params)
	if err != nil {
		return "", wrapStripeError("create product", err)
	}

	zap.L().Info("created billing product", zap.String("product_id", p.ID), zap.String("tier_id", tierID))
	return p.ID, nil
}

func (g *StripeGateway) GetOrCreatePrice(ctx context.Context, productID string, amountCents int64, interval string) (string, error) {
	listParams := &stripe.PriceListParams{
		Product: stripe.String(productID),
		Active:  stripe.Bool(true),
	}
	listParams.Context = ctx

	iter := g.prices.List(listParams)
	for iter.Next() {
		p := iter.Price()
		if p.UnitAmount == amountCents && p.Recurring != nil && string(p.Recurring.Interval) == interval {
			return p.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", wrapStripeError("list prices", err)
	}

	params := &stripe.PriceParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(amountCents),
		Currency:   stripe.String(string(stripe.CurrencyUSD)),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(interval),
		},
	}
	params.Context = ctx

	p, err := g.prices.New(params)
	if err != nil {
		return "", wrapStripeError("create price", err)
	}

	return p.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutSessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(in.CustomerID),
		SuccessURL: stripe.String(g.successURL),
		CancelURL:  stripe.String(g.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		},
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, wrapStripeError("create checkout session", err)
	}

	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(g.portalReturnURL),
	}
	params.Context = ctx

	s, err := g.portals.New(params)
	if err != nil {
		return "", wrapStripeError("create portal session", err)
	}

	return s.URL, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	if _, err := g.subscriptions.Cancel(subscriptionID, params); err != nil {
		return wrapStripeError("cancel subscription", err)
	}
	return nil
}

func (g *StripeGateway) PauseSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String("void"),
		},
	}
	params.Context = ctx

	if _, err := g.subscriptions.Update(subscriptionID, params); err != nil {
		return wrapStripeError("pause subscription", err)
	}
	return nil
}

func (g *StripeGateway) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	// Unset pause_collection to resume billing.
	params.AddExtra("pause_collection", "")

	if _, err := g.subscriptions.Update(subscriptionID, params); err != nil {
		return wrapStripeError("resume subscription", err)
	}
	return nil
}

// wrapStripeError reports every gateway failure as a retryable external
// service error; the caller must not have written local state yet.
func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return errutil.BadGateway(fmt.Sprintf("stripe: %s failed: %s", op, stripeErr.Code), err)
	}
	return errutil.BadGateway(fmt.Sprintf("stripe: %s failed", op), err)
}
