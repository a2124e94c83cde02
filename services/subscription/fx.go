package subscription

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"creatorfund-core/pkg/middleware"
)

var Module = fx.Module("subscription.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, s *Service) {
	stripe := r.Group("/stripe", middleware.Identity(), middleware.Error())
	stripe.POST("/create-checkout-session", s.createCheckout)
	stripe.POST("/create-portal-session", s.createPortalSession)

	subs := r.Group("/subscriptions", middleware.Identity(), middleware.Error())
	subs.GET("/my", s.listMine)
	subs.POST("/:id/cancel", s.cancel)
	subs.POST("/:id/pause", s.pause)
	subs.POST("/:id/resume", s.resume)
}
