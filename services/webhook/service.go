package webhook

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v83"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"creatorfund-core/pkg/config"
	"creatorfund-core/pkg/repository"
	"creatorfund-core/services/subscription"
)

const dedupTTL = 24 * time.Hour

// Reconciler applies payment processor events to local subscription
// state. Every handler is idempotent on its own, and the ProviderEvent
// journal guarantees a given event id is applied at most once even when
// the processor redelivers.
type Reconciler struct {
	db            *gorm.DB
	node          *snowflake.Node
	redis         *redis.Client
	webhookSecret string
	subscriptions *subscription.Service

	events repository.Repository[ProviderEvent]
}

type ReconcilerParams struct {
	fx.In
	Config        *config.Config
	DB            *gorm.DB
	Node          *snowflake.Node
	Redis         *redis.Client `optional:"true"`
	Subscriptions *subscription.Service
}

func NewReconciler(p ReconcilerParams) *Reconciler {
	return &Reconciler{
		db:            p.DB,
		node:          p.Node,
		redis:         p.Redis,
		webhookSecret: p.Config.Stripe.WebhookSecret,
		subscriptions: p.Subscriptions,

		events: repository.ProvideStore[ProviderEvent](p.DB),
	}
}

// Process journals the event and dispatches it to the matching handler.
// Returns nil for duplicates and for event types the reconciler does not
// track; both are acknowledged so the processor stops redelivering.
func (r *Reconciler) Process(ctx context.Context, ev stripe.Event) error {
	log := zap.L().With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", string(ev.Type)),
	)

	if r.seenInCache(ctx, ev.ID) {
		log.Debug("event already handled, cache hit")
		return nil
	}

	record, fresh, err := r.claim(ctx, ev)
	if err != nil {
		return err
	}
	if record == nil {
		log.Debug("event already handled")
		return nil
	}
	if !fresh {
		log.Info("retrying previously failed event")
	}

	if err := r.dispatch(ctx, ev); err != nil {
		log.Error("event handler failed", zap.Error(err))
		if uerr := r.events.Update(ctx, record.ID, map[string]any{
			"processing_error": err.Error(),
		}); uerr != nil {
			log.Error("failed to record handler error", zap.Error(uerr))
		}
		return err
	}

	if err := r.events.Update(ctx, record.ID, map[string]any{
		"processed_at":     time.Now(),
		"processing_error": "",
	}); err != nil {
		return err
	}
	r.cacheSeen(ctx, ev.ID)
	return nil
}

// claim reserves the event id in the journal. It returns the row to
// update plus whether it was newly inserted; a nil row means another
// delivery already holds or finished this event.
func (r *Reconciler) claim(ctx context.Context, ev stripe.Event) (*ProviderEvent, bool, error) {
	existing, err := r.events.FindOne(ctx, &ProviderEvent{
		Provider:        providerStripe,
		ProviderEventID: ev.ID,
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.ProcessedAt != nil {
			return nil, false, nil
		}
		// A row without processed_at is a failed earlier attempt; run it
		// again.
		return existing, false, nil
	}

	record := &ProviderEvent{
		ID:              r.node.Generate().String(),
		Provider:        providerStripe,
		ProviderEventID: ev.ID,
		EventType:       string(ev.Type),
		Payload:         datatypes.JSON(ev.Data.Raw),
		SignatureValid:  true,
		ReceivedAt:      time.Now(),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the insert race to a concurrent delivery.
		return nil, false, nil
	}
	return record, true, nil
}

func (r *Reconciler) dispatch(ctx context.Context, ev stripe.Event) error {
	switch string(ev.Type) {
	case EventCheckoutCompleted:
		return r.handleCheckoutCompleted(ctx, ev)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return r.handleSubscriptionChanged(ctx, ev)
	case EventSubscriptionDeleted:
		return r.handleSubscriptionDeleted(ctx, ev)
	case EventInvoicePaid:
		return r.handleInvoicePaid(ctx, ev)
	case EventInvoiceFailed:
		return r.handleInvoiceFailed(ctx, ev)
	default:
		zap.L().Debug("ignoring untracked event type", zap.String("event_type", string(ev.Type)))
		return nil
	}
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, ev stripe.Event) error {
	session, err := decodePayload[checkoutSessionPayload](ev)
	if err != nil {
		return err
	}
	if session.Subscription == "" {
		// One-time payment checkouts carry no subscription.
		zap.L().Info("checkout completed without a subscription", zap.String("session_id", session.ID))
		return nil
	}

	userID := session.Metadata["userId"]
	tierID := session.Metadata["tierId"]
	creatorID := session.Metadata["creatorId"]
	if userID == "" || tierID == "" || creatorID == "" {
		zap.L().Warn("checkout session missing correlation metadata",
			zap.String("session_id", session.ID))
		return nil
	}

	_, err = r.subscriptions.ActivateFromCheckout(ctx, subscription.ActivateParams{
		ExternalSubscriptionID: session.Subscription,
		ExternalCustomerID:     session.Customer,
		SubscriberID:           userID,
		TierID:                 tierID,
		CreatorID:              creatorID,
	})
	return err
}

// handleSubscriptionChanged mirrors created/updated events. A created
// event arriving before its checkout-completed event finds no local row
// and is acknowledged; the row appears when the checkout event lands.
func (r *Reconciler) handleSubscriptionChanged(ctx context.Context, ev stripe.Event) error {
	sub, err := decodePayload[subscriptionPayload](ev)
	if err != nil {
		return err
	}
	status := subscription.StatusFromProvider(sub.Status)
	if status == "" {
		zap.L().Warn("unrecognised subscription status",
			zap.String("external_subscription_id", sub.ID),
			zap.String("provider_status", sub.Status))
		return nil
	}
	return r.subscriptions.ApplyExternalStatus(ctx, sub.ID, status, sub.periodEnd())
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, ev stripe.Event) error {
	sub, err := decodePayload[subscriptionPayload](ev)
	if err != nil {
		return err
	}
	return r.subscriptions.ApplyExternalStatus(ctx, sub.ID, subscription.StatusCancelled, nil)
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, ev stripe.Event) error {
	inv, err := decodePayload[invoicePayload](ev)
	if err != nil {
		return err
	}
	if inv.Subscription == "" {
		return nil
	}
	return r.subscriptions.MarkPaid(ctx, inv.Subscription, inv.periodEnd())
}

func (r *Reconciler) handleInvoiceFailed(ctx context.Context, ev stripe.Event) error {
	inv, err := decodePayload[invoicePayload](ev)
	if err != nil {
		return err
	}
	if inv.Subscription == "" {
		return nil
	}
	return r.subscriptions.MarkPastDue(ctx, inv.Subscription)
}

// seenInCache is a best-effort fast path in front of the journal; a
// cache miss or redis outage just falls through to the database check.
func (r *Reconciler) seenInCache(ctx context.Context, eventID string) bool {
	if r.redis == nil {
		return false
	}
	n, err := r.redis.Exists(ctx, dedupKey(eventID)).Result()
	if err != nil {
		zap.L().Warn("dedup cache lookup failed", zap.Error(err))
		return false
	}
	return n > 0
}

func (r *Reconciler) cacheSeen(ctx context.Context, eventID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Set(ctx, dedupKey(eventID), 1, dedupTTL).Err(); err != nil {
		zap.L().Warn("dedup cache write failed", zap.Error(err))
	}
}

func dedupKey(eventID string) string {
	return "webhook:stripe:" + eventID
}
