package withdrawal

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"creatorfund-core/pkg/errutil"
	"creatorfund-core/pkg/middleware"
)

type createWithdrawalRequest struct {
	CampaignID  string  `json:"campaignId" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	BankAccount string  `json:"bankAccount"`
	Notes       string  `json:"notes"`
}

type updateWithdrawalRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

func (s *Service) create(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req createWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid withdrawal payload", err))
		return
	}

	// The API speaks decimal currency; the core works in cents.
	w, err := s.Create(c.Request.Context(), CreateRequest{
		CampaignID:  req.CampaignID,
		UserID:      userID,
		AmountCents: int64(math.Round(req.Amount * 100)),
		BankAccount: req.BankAccount,
		Notes:       req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, w)
}

func (s *Service) listMine(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	list, err := s.ListByUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (s *Service) list(c *gin.Context) {
	list, err := s.List(c.Request.Context(), Status(c.Query("status")))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (s *Service) update(c *gin.Context) {
	var req updateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid withdrawal payload", err))
		return
	}

	w, err := s.Update(c.Request.Context(), UpdateRequest{
		WithdrawalID: c.Param("id"),
		Status:       Status(req.Status),
		Notes:        req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, w)
}
