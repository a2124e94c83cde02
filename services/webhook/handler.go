package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.uber.org/zap"
)

// Stripe documents 64KB as its event payload ceiling; cap reads a bit
// above that.
const maxBodyBytes = 1 << 17

// handleStripeWebhook is the ingress for processor events. The response
// code drives redelivery: 400 rejects a bad signature permanently, 500
// asks the processor to try again later, 200 acknowledges.
func (r *Reconciler) handleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	// Accounts pinned to an older API version send events whose
	// api_version trails the SDK's; only the signature decides validity.
	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), r.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		zap.L().Warn("webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if err := r.Process(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
