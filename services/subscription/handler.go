package subscription

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"creatorfund-core/pkg/errutil"
	"creatorfund-core/pkg/middleware"
)

type createCheckoutRequest struct {
	TierID    string `json:"tierId" binding:"required"`
	CreatorID string `json:"creatorId" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Name      string `json:"name"`
}

func (s *Service) createCheckout(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid checkout payload", err))
		return
	}

	result, err := s.CreateCheckout(c.Request.Context(), CheckoutRequest{
		SubscriberID:    userID,
		SubscriberEmail: req.Email,
		SubscriberName:  req.Name,
		TierID:          req.TierID,
		CreatorID:       req.CreatorID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Service) createPortalSession(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	url, err := s.CreatePortalSession(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Service) listMine(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	list, err := s.ListBySubscriber(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (s *Service) transition(
	c *gin.Context,
	apply func(ctx *gin.Context, userID, subscriptionID string) (*Subscription, error),
) {
	userID, err := middleware.UserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	sub, err := apply(c, userID, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Service) cancel(c *gin.Context) {
	s.transition(c, func(ctx *gin.Context, userID, id string) (*Subscription, error) {
		return s.Cancel(ctx.Request.Context(), userID, id)
	})
}

func (s *Service) pause(c *gin.Context) {
	s.transition(c, func(ctx *gin.Context, userID, id string) (*Subscription, error) {
		return s.Pause(ctx.Request.Context(), userID, id)
	})
}

func (s *Service) resume(c *gin.Context) {
	s.transition(c, func(ctx *gin.Context, userID, id string) (*Subscription, error) {
		return s.Resume(ctx.Request.Context(), userID, id)
	})
}
