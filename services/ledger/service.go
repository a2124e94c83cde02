package ledger

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
	"creatorfund-core/pkg/repository"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	campaigns repository.Repository[Campaign]
	donations repository.Repository[Donation]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		campaigns: repository.ProvideStore[Campaign](p.DB),
		donations: repository.ProvideStore[Donation](p.DB),
	}
}

type RecordDonationRequest struct {
	CampaignID  string
	DonorID     string
	Amount      float64
	ReferenceID string
	Message     string
}

// RecordDonation inserts the donation and credits the campaign balance in
// one transaction. Replaying the same ReferenceID returns the original row
// without a second credit.
func (s *Service) RecordDonation(ctx context.Context, req RecordDonationRequest) (*Donation, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("campaign_id", req.CampaignID),
	}

	if req.Amount <= 0 {
		return nil, errutil.ValidationFailed("donation amount must be positive", nil)
	}

	donationID := s.node.Generate().String()
	if req.ReferenceID == "" {
		req.ReferenceID = donationID
	}

	// Pre-check for UX; the unique index on reference_id is the real guard.
	if existing, err := s.donations.FindOne(ctx, &Donation{ReferenceID: req.ReferenceID}); err != nil {
		return nil, err
	} else if existing != nil {
		zap.L().With(opts...).Warn("donation reference replayed", zap.String("reference_id", req.ReferenceID))
		return existing, nil
	}

	donation := &Donation{
		DonationID:  donationID,
		CampaignID:  req.CampaignID,
		DonorID:     req.DonorID,
		Amount:      req.Amount,
		Status:      DonationStatusCompleted,
		ReferenceID: req.ReferenceID,
		Message:     req.Message,
		CreatedAt:   time.Now(),
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		campaign, err := s.campaigns.WithTrx(tx).FindOne(ctx, &Campaign{CampaignID: req.CampaignID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if campaign == nil {
			return errutil.NotFound("campaign not found", nil)
		}

		if err := s.donations.WithTrx(tx).Create(ctx, donation); err != nil {
			return err
		}

		return s.Credit(ctx, tx, req.CampaignID, req.Amount)
	}); err != nil {
		zap.L().With(opts...).Error("failed to record donation", zap.Error(err))
		return nil, err
	}

	return donation, nil
}

// Credit increases the campaign balance. Must run inside the caller's
// transaction alongside the write that justifies it.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, campaignID string, amount float64) error {
	return tx.WithContext(ctx).
		Model(&Campaign{}).
		Where("campaign_id = ?", campaignID).
		Updates(map[string]any{
			"current_amount": gorm.Expr("current_amount + ?", amount),
			"updated_at":     time.Now(),
		}).Error
}

// Debit decreases the campaign balance. Callers validate sufficiency under
// their own lock first; the balance predicate here re-validates
// non-negativity and turns a violation into an Internal error that aborts
// the enclosing transaction.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, campaignID string, amount float64) error {
	res := tx.WithContext(ctx).
		Model(&Campaign{}).
		Where("campaign_id = ? AND current_amount >= ?", campaignID, amount).
		Updates(map[string]any{
			"current_amount": gorm.Expr("current_amount - ?", amount),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Internal("ledger invariant violated: debit would overdraw campaign", nil)
	}
	return nil
}

// GetCampaign loads a campaign, optionally under the caller's transaction.
func (s *Service) GetCampaign(ctx context.Context, tx *gorm.DB, campaignID string, opts ...option.QueryOption) (*Campaign, error) {
	return s.campaigns.WithTrx(tx).FindOne(ctx, &Campaign{CampaignID: campaignID}, opts...)
}

func (s *Service) GetBalance(ctx context.Context, campaignID string) (float64, error) {
	campaign, err := s.campaigns.FindOne(ctx, &Campaign{CampaignID: campaignID})
	if err != nil {
		return 0, err
	}
	if campaign == nil {
		return 0, errutil.NotFound("campaign not found", nil)
	}
	return campaign.CurrentAmount, nil
}

func (s *Service) ListDonations(ctx context.Context, campaignID string) ([]*Donation, error) {
	return s.donations.Find(ctx, &Donation{CampaignID: campaignID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
}
