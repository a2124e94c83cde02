package withdrawal

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"creatorfund-core/pkg/middleware"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, s *Service) {
	g := r.Group("/withdrawals", middleware.Identity(), middleware.Error())
	g.POST("", s.create)
	g.GET("/my", s.listMine)

	admin := g.Group("", middleware.RequireAdmin())
	admin.GET("", s.list)
	admin.PUT("/:id", s.update)
}
