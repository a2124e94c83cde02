package ledger

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"creatorfund-core/pkg/errutil"
	"creatorfund-core/pkg/middleware"
)

type donationRequest struct {
	CampaignID  string  `json:"campaignId" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	ReferenceID string  `json:"referenceId"`
	Message     string  `json:"message"`
}

func (s *Service) createDonation(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req donationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid donation payload", err))
		return
	}

	donation, err := s.RecordDonation(c.Request.Context(), RecordDonationRequest{
		CampaignID:  req.CampaignID,
		DonorID:     userID,
		Amount:      req.Amount,
		ReferenceID: req.ReferenceID,
		Message:     req.Message,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, donation)
}

func (s *Service) getBalance(c *gin.Context) {
	balance, err := s.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaignId": c.Param("id"), "currentAmount": balance})
}

func (s *Service) listDonations(c *gin.Context) {
	donations, err := s.ListDonations(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": donations})
}
