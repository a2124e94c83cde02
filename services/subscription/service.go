package subscription

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorfund-core/pkg/db/option"
	"creatorfund-core/pkg/errutil"
	"creatorfund-core/pkg/paymentgw"
	"creatorfund-core/pkg/repository"
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	gateway paymentgw.Gateway

	tiers         repository.Repository[MembershipTier]
	subscriptions repository.Repository[Subscription]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Gateway paymentgw.Gateway
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		gateway: p.Gateway,

		tiers:         repository.ProvideStore[MembershipTier](p.DB),
		subscriptions: repository.ProvideStore[Subscription](p.DB),
	}
}

type CheckoutRequest struct {
	SubscriberID    string
	SubscriberEmail string
	SubscriberName  string
	TierID          string
	CreatorID       string
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateCheckout validates the tier, ensures the payment processor has a
// customer, product and price for it, and opens a hosted checkout
// session. No local subscription row is written here; the row appears
// when the checkout-completed event is reconciled.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	span := trace.SpanFromContext(ctx)
	fields := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("subscriber_id", req.SubscriberID),
		zap.String("tier_id", req.TierID),
	}

	tier, err := s.tiers.FindOne(ctx, &MembershipTier{TierID: req.TierID})
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, errutil.NotFound("membership tier not found", nil)
	}
	if !tier.Active {
		return nil, errutil.ValidationFailed("tier no longer available", nil)
	}
	if tier.CreatorID != req.CreatorID {
		return nil, errutil.ValidationFailed("tier belongs to a different creator", nil)
	}
	if tier.MaxSubscribers > 0 && tier.CurrentSubscribers >= tier.MaxSubscribers {
		return nil, errutil.ValidationFailed("subscriber limit reached", nil)
	}

	existing, err := s.subscriptions.FindOne(ctx, &Subscription{
		SubscriberID: req.SubscriberID,
		CreatorID:    req.CreatorID,
		Status:       StatusActive,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("an active subscription to this creator already exists", nil)
	}

	customerID, err := s.gateway.GetOrCreateCustomer(ctx, req.SubscriberEmail, req.SubscriberName)
	if err != nil {
		zap.L().With(fields...).Error("checkout aborted at customer step", zap.Error(err))
		return nil, err
	}

	productID, err := s.gateway.GetOrCreateProduct(ctx, tier.TierID, tier.Name)
	if err != nil {
		zap.L().With(fields...).Error("checkout aborted at product step", zap.Error(err))
		return nil, err
	}

	priceID, err := s.gateway.GetOrCreatePrice(ctx, productID, tier.PriceCents, tier.Interval)
	if err != nil {
		zap.L().With(fields...).Error("checkout aborted at price step", zap.Error(err))
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, paymentgw.CheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    priceID,
		Metadata: map[string]string{
			"userId":     req.SubscriberID,
			"tierId":     tier.TierID,
			"creatorId":  tier.CreatorID,
			"campaignId": tier.CampaignID,
		},
	})
	if err != nil {
		zap.L().With(fields...).Error("checkout aborted at session step", zap.Error(err))
		return nil, err
	}

	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// CreatePortalSession opens the processor's self-service billing portal
// for a subscriber who already has a billing customer.
func (s *Service) CreatePortalSession(ctx context.Context, subscriberID string) (string, error) {
	subs, err := s.subscriptions.Find(ctx, &Subscription{SubscriberID: subscriberID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
	if err != nil {
		return "", err
	}

	var customerID string
	for _, sub := range subs {
		if sub.StripeCustomerID != "" {
			customerID = sub.StripeCustomerID
			break
		}
	}
	if customerID == "" {
		return "", errutil.NotFound("no billing customer on file", nil)
	}

	return s.gateway.CreatePortalSession(ctx, customerID)
}

// loadOwned fetches a subscription and checks the caller owns it.
func (s *Service) loadOwned(ctx context.Context, subscriberID, subscriptionID string) (*Subscription, error) {
	sub, err := s.subscriptions.FindOne(ctx, &Subscription{SubscriptionID: subscriptionID})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errutil.NotFound("subscription not found", nil)
	}
	if sub.SubscriberID != subscriberID {
		return nil, errutil.Forbidden("subscription belongs to another user", nil)
	}
	return sub, nil
}

// Cancel ends a subscription at the processor and mirrors the terminal
// state locally. Cancelling an already cancelled subscription is a no-op.
func (s *Service) Cancel(ctx context.Context, subscriberID, subscriptionID string) (*Subscription, error) {
	sub, err := s.loadOwned(ctx, subscriberID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusCancelled {
		return sub, nil
	}

	if err := s.gateway.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
		return nil, err
	}

	if err := s.markCancelled(ctx, sub); err != nil {
		return nil, err
	}
	return s.subscriptions.FindOne(ctx, &Subscription{SubscriptionID: subscriptionID})
}

// Pause suspends billing. Only an ACTIVE subscription can be paused.
func (s *Service) Pause(ctx context.Context, subscriberID, subscriptionID string) (*Subscription, error) {
	sub, err := s.loadOwned(ctx, subscriberID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusActive {
		return nil, errutil.ValidationFailed("only an active subscription can be paused", nil)
	}

	if err := s.gateway.PauseSubscription(ctx, sub.StripeSubscriptionID); err != nil {
		return nil, err
	}

	if err := s.subscriptions.Update(ctx, sub.SubscriptionID, map[string]any{
		"status":     StatusPaused,
		"updated_at": time.Now(),
	}); err != nil {
		return nil, err
	}
	return s.subscriptions.FindOne(ctx, &Subscription{SubscriptionID: subscriptionID})
}

// Resume restarts billing on a paused subscription.
func (s *Service) Resume(ctx context.Context, subscriberID, subscriptionID string) (*Subscription, error) {
	sub, err := s.loadOwned(ctx, subscriberID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusPaused {
		return nil, errutil.ValidationFailed("only a paused subscription can be resumed", nil)
	}

	if err := s.gateway.ResumeSubscription(ctx, sub.StripeSubscriptionID); err != nil {
		return nil, err
	}

	if err := s.subscriptions.Update(ctx, sub.SubscriptionID, map[string]any{
		"status":     StatusActive,
		"updated_at": time.Now(),
	}); err != nil {
		return nil, err
	}
	return s.subscriptions.FindOne(ctx, &Subscription{SubscriptionID: subscriptionID})
}

func (s *Service) ListBySubscriber(ctx context.Context, subscriberID string) ([]*Subscription, error) {
	return s.subscriptions.Find(ctx, &Subscription{SubscriberID: subscriberID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
}

// ActivateParams carries the correlation data recovered from a completed
// checkout event.
type ActivateParams struct {
	ExternalSubscriptionID string
	ExternalCustomerID     string
	SubscriberID           string
	TierID                 string
	CreatorID              string
}

// ActivateFromCheckout creates the local ACTIVE subscription for a
// completed checkout. Keyed on the processor's subscription id, so a
// redelivered event finds the existing row and changes nothing.
func (s *Service) ActivateFromCheckout(ctx context.Context, p ActivateParams) (*Subscription, error) {
	existing, err := s.subscriptions.FindOne(ctx, &Subscription{
		StripeSubscriptionID: p.ExternalSubscriptionID,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sub := &Subscription{
		SubscriptionID:       s.node.Generate().String(),
		SubscriberID:         p.SubscriberID,
		CreatorID:            p.CreatorID,
		TierID:               p.TierID,
		Status:               StatusActive,
		StartDate:            time.Now(),
		StripeSubscriptionID: p.ExternalSubscriptionID,
		StripeCustomerID:     p.ExternalCustomerID,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.subscriptions.WithTrx(tx).Create(ctx, sub); err != nil {
			return err
		}
		return s.incrementTierCount(ctx, tx, p.TierID)
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

// FindByExternalID looks a subscription up by the processor's id.
// Returns (nil, nil) when unknown.
func (s *Service) FindByExternalID(ctx context.Context, externalID string) (*Subscription, error) {
	return s.subscriptions.FindOne(ctx, &Subscription{StripeSubscriptionID: externalID})
}

// ApplyExternalStatus mirrors a processor-side status change. CANCELLED
// is terminal locally, so a late status update for a cancelled
// subscription is dropped.
func (s *Service) ApplyExternalStatus(ctx context.Context, externalID string, status Status, periodEnd *time.Time) error {
	if status == "" {
		return nil
	}

	sub, err := s.FindByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if sub == nil {
		zap.L().Warn("status update for unknown subscription",
			zap.String("external_subscription_id", externalID))
		return nil
	}
	if sub.Status == StatusCancelled {
		return nil
	}

	if status == StatusCancelled {
		return s.markCancelled(ctx, sub)
	}

	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	}
	if periodEnd != nil {
		updates["next_billing_date"] = *periodEnd
	}
	return s.subscriptions.Update(ctx, sub.SubscriptionID, updates)
}

// MarkPaid records a successful renewal: the subscription becomes ACTIVE
// again if it was PAST_DUE, and the next billing date advances.
func (s *Service) MarkPaid(ctx context.Context, externalID string, nextBilling *time.Time) error {
	sub, err := s.FindByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if sub == nil {
		zap.L().Warn("payment for unknown subscription",
			zap.String("external_subscription_id", externalID))
		return nil
	}
	if sub.Status == StatusCancelled {
		return nil
	}

	updates := map[string]any{"updated_at": time.Now()}
	if sub.Status == StatusPastDue {
		updates["status"] = StatusActive
	}
	if nextBilling != nil {
		updates["next_billing_date"] = *nextBilling
	}
	return s.subscriptions.Update(ctx, sub.SubscriptionID, updates)
}

// MarkPastDue records a failed renewal payment.
func (s *Service) MarkPastDue(ctx context.Context, externalID string) error {
	sub, err := s.FindByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if sub == nil {
		zap.L().Warn("failed payment for unknown subscription",
			zap.String("external_subscription_id", externalID))
		return nil
	}
	if sub.Status == StatusCancelled {
		return nil
	}

	return s.subscriptions.Update(ctx, sub.SubscriptionID, map[string]any{
		"status":     StatusPastDue,
		"updated_at": time.Now(),
	})
}

// markCancelled writes the terminal state and releases the tier slot in
// one transaction. The status predicate keeps the decrement from running
// twice when cancel paths race.
func (s *Service) markCancelled(ctx context.Context, sub *Subscription) error {
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Model(&Subscription{}).
			Where("subscription_id = ? AND status <> ?", sub.SubscriptionID, StatusCancelled).
			Updates(map[string]any{
				"status":       StatusCancelled,
				"cancelled_at": now,
				"end_date":     now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return s.decrementTierCount(ctx, tx, sub.TierID)
	})
}

func (s *Service) incrementTierCount(ctx context.Context, tx *gorm.DB, tierID string) error {
	return tx.WithContext(ctx).Model(&MembershipTier{}).
		Where("tier_id = ?", tierID).
		Updates(map[string]any{
			"current_subscribers": gorm.Expr("current_subscribers + 1"),
			"updated_at":          time.Now(),
		}).Error
}

// decrementTierCount never takes the counter below zero.
func (s *Service) decrementTierCount(ctx context.Context, tx *gorm.DB, tierID string) error {
	return tx.WithContext(ctx).Model(&MembershipTier{}).
		Where("tier_id = ? AND current_subscribers > 0", tierID).
		Updates(map[string]any{
			"current_subscribers": gorm.Expr("current_subscribers - 1"),
			"updated_at":          time.Now(),
		}).Error
}
