package withdrawal

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorfund-core/pkg/db/option"
	"creatorfund-core/pkg/errutil"
	"creatorfund-core/pkg/repository"
	"creatorfund-core/services/ledger"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	ledger *ledger.Service

	withdrawals repository.Repository[Withdrawal]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		ledger: p.Ledger,

		withdrawals: repository.ProvideStore[Withdrawal](p.DB),
	}
}

type CreateRequest struct {
	CampaignID  string
	UserID      string
	AmountCents int64
	BankAccount string
	Notes       string
}

// Create validates and inserts a PENDING withdrawal. The balance check,
// the single-PENDING check and the insert run in one transaction with the
// campaign row locked, so two concurrent requests cannot both pass their
// preconditions before either commits.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Withdrawal, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("campaign_id", req.CampaignID),
		zap.String("user_id", req.UserID),
	}

	if req.AmountCents <= 0 {
		return nil, errutil.ValidationFailed("withdrawal amount must be positive", nil)
	}

	w := &Withdrawal{
		WithdrawalID: s.node.Generate().String(),
		CampaignID:   req.CampaignID,
		UserID:       req.UserID,
		AmountCents:  req.AmountCents,
		Status:       StatusPending,
		RequestedAt:  time.Now(),
		Notes:        req.Notes,
		BankAccount:  req.BankAccount,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		campaign, err := s.ledger.GetCampaign(ctx, tx, req.CampaignID, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if campaign == nil {
			return errutil.NotFound("campaign not found", nil)
		}
		if campaign.CreatorID != req.UserID {
			return errutil.Forbidden("only the campaign creator can request a withdrawal", nil)
		}

		availableCents := int64(math.Round(campaign.CurrentAmount * 100))
		if req.AmountCents > availableCents {
			return errutil.ValidationFailed("insufficient funds", nil)
		}

		pending, err := s.withdrawals.WithTrx(tx).Count(ctx, &Withdrawal{
			CampaignID: req.CampaignID,
			Status:     StatusPending,
		})
		if err != nil {
			return err
		}
		if pending > 0 {
			return errutil.Conflict("pending withdrawal already exists", nil)
		}

		return s.withdrawals.WithTrx(tx).Create(ctx, w)
	}); err != nil {
		zap.L().With(opts...).Warn("withdrawal request rejected", zap.Error(err))
		return nil, err
	}

	return w, nil
}

type UpdateRequest struct {
	WithdrawalID string
	Status       Status
	Notes        string
}

// Update transitions a withdrawal to a new status. The transition into
// COMPLETED debits the ledger exactly once: the status update carries a
// status <> COMPLETED predicate, and the debit only runs when that update
// touched a row.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*Withdrawal, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("withdrawal_id", req.WithdrawalID),
		zap.String("status", string(req.Status)),
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		w, err := s.withdrawals.WithTrx(tx).FindOne(ctx,
			&Withdrawal{WithdrawalID: req.WithdrawalID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if w == nil {
			return errutil.NotFound("withdrawal not found", nil)
		}
		if !ValidStatus(req.Status) {
			return errutil.ValidationFailed("invalid withdrawal status", nil)
		}

		updates := map[string]any{
			"status":     req.Status,
			"notes":      req.Notes,
			"updated_at": time.Now(),
		}
		if req.Status == StatusPending {
			// Re-opening a request clears its processing timestamp and must
			// not break the single-PENDING invariant.
			var other int64
			if err := tx.WithContext(ctx).Model(&Withdrawal{}).
				Where("campaign_id = ? AND status = ? AND withdrawal_id <> ?",
					w.CampaignID, StatusPending, w.WithdrawalID).
				Count(&other).Error; err != nil {
				return err
			}
			if other > 0 {
				return errutil.Conflict("pending withdrawal already exists", nil)
			}
			updates["processed_at"] = nil
		} else {
			updates["processed_at"] = time.Now()
		}

		if req.Status == StatusCompleted {
			res := tx.WithContext(ctx).Model(&Withdrawal{}).
				Where("withdrawal_id = ? AND status <> ?", w.WithdrawalID, StatusCompleted).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Already completed; the debit has happened. Notes still
				// take the caller's value.
				return tx.WithContext(ctx).Model(&Withdrawal{}).
					Where("withdrawal_id = ?", w.WithdrawalID).
					Updates(map[string]any{
						"notes":      req.Notes,
						"updated_at": time.Now(),
					}).Error
			}

			return s.ledger.Debit(ctx, tx, w.CampaignID, float64(w.AmountCents)/100)
		}

		if w.Status == StatusCompleted {
			return errutil.ValidationFailed("completed withdrawal cannot be re-opened", nil)
		}

		return tx.WithContext(ctx).Model(&Withdrawal{}).
			Where("withdrawal_id = ?", w.WithdrawalID).
			Updates(updates).Error
	}); err != nil {
		zap.L().With(opts...).Error("failed to update withdrawal", zap.Error(err))
		return nil, err
	}

	return s.withdrawals.FindOne(ctx, &Withdrawal{WithdrawalID: req.WithdrawalID})
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Withdrawal, error) {
	return s.withdrawals.Find(ctx, &Withdrawal{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
}

// List returns withdrawals across all campaigns, optionally filtered by
// status. Administrator-only at the transport layer.
func (s *Service) List(ctx context.Context, status Status) ([]*Withdrawal, error) {
	query := &Withdrawal{}
	if status != "" {
		if !ValidStatus(status) {
			return nil, errutil.ValidationFailed("invalid withdrawal status", nil)
		}
		query.Status = status
	}
	return s.withdrawals.Find(ctx, query,
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
}
