package ledger

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"creatorfund-core/pkg/middleware"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, s *Service) {
	g := r.Group("/", middleware.Identity(), middleware.Error())
	g.POST("/donations", s.createDonation)
	g.GET("/campaigns/:id/balance", s.getBalance)
	g.GET("/campaigns/:id/donations", s.listDonations)
}
