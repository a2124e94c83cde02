package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorfund-core/pkg/errutil"
	"creatorfund-core/pkg/paymentgw"
	"creatorfund-core/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type gatewayMock struct {
	customerFn func(ctx context.Context, email, name string) (string, error)
	productFn  func(ctx context.Context, tierID, name string) (string, error)
	priceFn    func(ctx context.Context, productID string, amountCents int64, interval string) (string, error)
	checkoutFn func(ctx context.Context, params paymentgw.CheckoutSessionParams) (*paymentgw.CheckoutSession, error)
	portalFn   func(ctx context.Context, customerID string) (string, error)
	cancelFn   func(ctx context.Context, subscriptionID string) error
	pauseFn    func(ctx context.Context, subscriptionID string) error
	resumeFn   func(ctx context.Context, subscriptionID string) error

	cancelCalls int
}

func (m *gatewayMock) GetOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	if m.customerFn != nil {
		return m.customerFn(ctx, email, name)
	}
	return "cus_test", nil
}

func (m *gatewayMock) GetOrCreateProduct(ctx context.Context, tierID, name string) (string, error) {
	if m.productFn != nil {
		return m.productFn(ctx, tierID, name)
	}
	return "prod_test", nil
}

func (m *gatewayMock) GetOrCreatePrice(ctx context.Context, productID string, amountCents int64, interval string) (string, error) {
	if m.priceFn != nil {
		return m.priceFn(ctx, productID, amountCents, interval)
	}
	return "price_test", nil
}

func (m *gatewayMock) CreateCheckoutSession(ctx context.Context, params paymentgw.CheckoutSessionParams) (*paymentgw.CheckoutSession, error) {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, params)
	}
	return &paymentgw.CheckoutSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

func (m *gatewayMock) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	if m.portalFn != nil {
		return m.portalFn(ctx, customerID)
	}
	return "https://billing.example/portal", nil
}

func (m *gatewayMock) CancelSubscription(ctx context.Context, subscriptionID string) error {
	m.cancelCalls++
	if m.cancelFn != nil {
		return m.cancelFn(ctx, subscriptionID)
	}
	return nil
}

func (m *gatewayMock) PauseSubscription(ctx context.Context, subscriptionID string) error {
	if m.pauseFn != nil {
		return m.pauseFn(ctx, subscriptionID)
	}
	return nil
}

func (m *gatewayMock) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	if m.resumeFn != nil {
		return m.resumeFn(ctx, subscriptionID)
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *gatewayMock, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &MembershipTier{}, &Subscription{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	gw := &gatewayMock{}
	svc := NewService(ServiceParams{DB: db, Node: node, Gateway: gw})
	return svc, gw, db
}

func seedTier(t *testing.T, db *gorm.DB, tier MembershipTier) {
	t.Helper()
	require.NoError(t, db.Create(&tier).Error)
}

func defaultTier() MembershipTier {
	return MembershipTier{
		TierID:         "tier-1",
		CampaignID:     "camp-1",
		CreatorID:      "creator-1",
		Name:           "Gold",
		PriceCents:     500,
		Interval:       "month",
		MaxSubscribers: 2,
		Active:         true,
	}
}

func requireStatus(t *testing.T, err error, status errutil.CoreStatus) {
	t.Helper()
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, status, be.Status())
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{
		SubscriberID:    "user-1",
		SubscriberEmail: "user@example.com",
		SubscriberName:  "User One",
		TierID:          "tier-1",
		CreatorID:       "creator-1",
	}
}

func TestCreateCheckout(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedTier(t, db, defaultTier())

	var captured paymentgw.CheckoutSessionParams
	gw.checkoutFn = func(ctx context.Context, params paymentgw.CheckoutSessionParams) (*paymentgw.CheckoutSession, error) {
		captured = params
		return &paymentgw.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
	}

	result, err := svc.CreateCheckout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	require.Equal(t, "cs_1", result.SessionID)
	require.Equal(t, "https://checkout.example/cs_1", result.URL)

	require.Equal(t, "cus_test", captured.CustomerID)
	require.Equal(t, "price_test", captured.PriceID)
	require.Equal(t, map[string]string{
		"userId":     "user-1",
		"tierId":     "tier-1",
		"creatorId":  "creator-1",
		"campaignId": "camp-1",
	}, captured.Metadata)

	// No local row until the completed checkout is reconciled.
	var count int64
	require.NoError(t, db.Model(&Subscription{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateCheckoutTierNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateCheckout(context.Background(), checkoutRequest())
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestCreateCheckoutInactiveTier(t *testing.T) {
	svc, _, db := newTestService(t)
	tier := defaultTier()
	tier.Active = false
	seedTier(t, db, tier)

	_, err := svc.CreateCheckout(context.Background(), checkoutRequest())
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestCreateCheckoutWrongCreator(t *testing.T) {
	svc, _, db := newTestService(t)
	seedTier(t, db, defaultTier())

	req := checkoutRequest()
	req.CreatorID = "creator-2"
	_, err := svc.CreateCheckout(context.Background(), req)
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestCreateCheckoutSubscriberLimit(t *testing.T) {
	svc, _, db := newTestService(t)
	tier := defaultTier()
	tier.CurrentSubscribers = tier.MaxSubscribers
	seedTier(t, db, tier)

	_, err := svc.CreateCheckout(context.Background(), checkoutRequest())
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestCreateCheckoutDuplicateActive(t *testing.T) {
	svc, _, db := newTestService(t)
	seedTier(t, db, defaultTier())
	require.NoError(t, db.Create(&Subscription{
		SubscriptionID:       "sub-local-1",
		SubscriberID:         "user-1",
		CreatorID:            "creator-1",
		TierID:               "tier-1",
		Status:               StatusActive,
		StripeSubscriptionID: "sub_ext_1",
	}).Error)

	_, err := svc.CreateCheckout(context.Background(), checkoutRequest())
	requireStatus(t, err, errutil.StatusConflict)
}

func TestCreateCheckoutGatewayFailure(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedTier(t, db, defaultTier())

	gw.priceFn = func(ctx context.Context, productID string, amountCents int64, interval string) (string, error) {
		return "", errutil.BadGateway("stripe unavailable", nil)
	}

	_, err := svc.CreateCheckout(context.Background(), checkoutRequest())
	requireStatus(t, err, errutil.StatusBadGateway)

	var count int64
	require.NoError(t, db.Model(&Subscription{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreatePortalSessionNoCustomer(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreatePortalSession(context.Background(), "user-1")
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestCreatePortalSession(t *testing.T) {
	svc, _, db := newTestService(t)
	require.NoError(t, db.Create(&Subscription{
		SubscriptionID:       "sub-local-1",
		SubscriberID:         "user-1",
		CreatorID:            "creator-1",
		TierID:               "tier-1",
		Status:               StatusActive,
		StripeSubscriptionID: "sub_ext_1",
		StripeCustomerID:     "cus_1",
	}).Error)

	url, err := svc.CreatePortalSession(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "https://billing.example/portal", url)
}

func TestActivateFromCheckoutIdempotent(t *testing.T) {
	svc, _, db := newTestService(t)
	seedTier(t, db, defaultTier())

	params := ActivateParams{
		ExternalSubscriptionID: "sub_ext_1",
		ExternalCustomerID:     "cus_1",
		SubscriberID:           "user-1",
		TierID:                 "tier-1",
		CreatorID:              "creator-1",
	}

	first, err := svc.ActivateFromCheckout(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, StatusActive, first.Status)

	second, err := svc.ActivateFromCheckout(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, first.SubscriptionID, second.SubscriptionID)

	var count int64
	require.NoError(t, db.Model(&Subscription{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	var tier MembershipTier
	require.NoError(t, db.First(&tier, "tier_id = ?", "tier-1").Error)
	require.Equal(t, 1, tier.CurrentSubscribers)
}

func TestCancelReleasesTierSlot(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedTier(t, db, defaultTier())

	sub, err := svc.ActivateFromCheckout(context.Background(), ActivateParams{
		ExternalSubscriptionID: "sub_ext_1",
		ExternalCustomerID:     "cus_1",
		SubscriberID:           "user-1",
		TierID:                 "tier-1",
		CreatorID:              "creator-1",
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), "user-1", sub.SubscriptionID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, cancelled.EndDate)
	require.Equal(t, 1, gw.cancelCalls)

	var tier MembershipTier
	require.NoError(t, db.First(&tier, "tier_id = ?", "tier-1").Error)
	require.Zero(t, tier.CurrentSubscribers)

	// Cancelling again is a no-op and does not hit the gateway.
	again, err := svc.Cancel(context.Background(), "user-1", sub.SubscriptionID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, again.Status)
	require.Equal(t, 1, gw.cancelCalls)

	require.NoError(t, db.First(&tier, "tier_id = ?", "tier-1").Error)
	require.Zero(t, tier.CurrentSubscribers)
}

func TestCancelForbiddenForOtherUser(t *testing.T) {
	svc, _, db := newTestService(t)
	seedTier(t, db, defaultTier())

	sub, err := svc.ActivateFromCheckout(context.Background(), ActivateParams{
		ExternalSubscriptionID: "sub_ext_1",
		SubscriberID:           "user-1",
		TierID:                 "tier-1",
		CreatorID:              "creator-1",
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), "user-2", sub.SubscriptionID)
	requireStatus(t, err, errutil.StatusForbidden)
}

func TestPauseAndResume(t *testing.T) {
	svc, _, db := newTestService(t)
	seedTier(t, db, defaultTier())

	sub, err := svc.ActivateFromCheckout(context.Background(), ActivateParams{
		ExternalSubscriptionID: "sub_ext_1",
		SubscriberID:           "user-1",
		TierID:                 "tier-1",
		CreatorID:              "creator-1",
	})
	require.NoError(t, err)

	paused, err := svc.Pause(context.Background(), "user-1", sub.SubscriptionID)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, paused.Status)

	// A paused subscription cannot be paused again.
	_, err = svc.Pause(context.Background(), "user-1", sub.SubscriptionID)
	requireStatus(t, err, errutil.StatusValidationFailed)

	resumed, err := svc.Resume(context.Background(), "user-1", sub.SubscriptionID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, resumed.Status)

	_, err = svc.Resume(context.Background(), "user-1", sub.SubscriptionID)
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestApplyExternalStatusUnknownSubscription(t *testing.T) {
	svc, _, db := newTestService(t)

	require.NoError(t, svc.ApplyExternalStatus(context.Background(), "sub_unknown", StatusActive, nil))

	var count int64
	require.NoError(t, db.Model(&Subscription{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestApplyExternalStatusCancelledIsTerminal(t *testing.T) {
	svc, _, db := newTestService(t)
	seedTier(t, db, defaultTier())

	sub, err := svc.ActivateFromCheckout(context.Background(), ActivateParams{
		ExternalSubscriptionID: "sub_ext_1",
		SubscriberID:           "user-1",
		TierID:                 "tier-1",
		CreatorID:              "creator-1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ApplyExternalStatus(context.Background(), "sub_ext_1", StatusCancelled, nil))
	require.NoError(t, svc.ApplyExternalStatus(context.Background(), "sub_ext_1", StatusActive, nil))

	var got Subscription
	require.NoError(t, db.First(&got, "subscription_id = ?", sub.SubscriptionID).Error)
	require.Equal(t, StatusCancelled, got.Status)
}

func TestMarkPaidRecoversPastDue(t *testing.T) {
	svc, _, db := newTestService(t)
	seedTier(t, db, defaultTier())

	sub, err := svc.ActivateFromCheckout(context.Background(), ActivateParams{
		ExternalSubscriptionID: "sub_ext_1",
		SubscriberID:           "user-1",
		TierID:                 "tier-1",
		CreatorID:              "creator-1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkPastDue(context.Background(), "sub_ext_1"))

	var got Subscription
	require.NoError(t, db.First(&got, "subscription_id = ?", sub.SubscriptionID).Error)
	require.Equal(t, StatusPastDue, got.Status)

	next := time.Now().Add(30 * 24 * time.Hour)
	require.NoError(t, svc.MarkPaid(context.Background(), "sub_ext_1", &next))

	require.NoError(t, db.First(&got, "subscription_id = ?", sub.SubscriptionID).Error)
	require.Equal(t, StatusActive, got.Status)
	require.NotNil(t, got.NextBillingDate)
}
