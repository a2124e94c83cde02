package webhook

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(NewReconciler),
	fx.Invoke(registerRoutes),
)

// The webhook route carries no identity middleware; the signature check
// is its authentication.
func registerRoutes(r *gin.Engine, rec *Reconciler) {
	r.POST("/stripe/webhook", rec.handleStripeWebhook)
}
