package webhook

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	rec, _ := newTestReconciler(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	registerRoutes(r, rec)
	return r
}

func eventBody(t *testing.T, id, eventType string) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"id":          id,
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": map[string]any{"id": "obj_1"}},
	})
	require.NoError(t, err)
	return body
}

func signatureHeader(payload []byte, secret string, ts time.Time) string {
	sig := webhook.ComputeSignature(ts, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))
}

func postWebhook(r *gin.Engine, body []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader(body))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookValidSignature(t *testing.T) {
	r := newTestRouter(t)

	body := eventBody(t, "evt_1", "charge.refunded")
	w := postWebhook(r, body, signatureHeader(body, "whsec_test", time.Now()))

	require.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookOlderAPIVersion(t *testing.T) {
	r := newTestRouter(t)

	// An account pinned to an older API version still delivers validly
	// signed events; they must not be rejected on the version field.
	body, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"type":        "charge.refunded",
		"api_version": "2023-10-16",
		"data":        map[string]any{"object": map[string]any{"id": "obj_1"}},
	})
	require.NoError(t, err)

	w := postWebhook(r, body, signatureHeader(body, "whsec_test", time.Now()))

	require.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookMissingSignature(t *testing.T) {
	r := newTestRouter(t)

	w := postWebhook(r, eventBody(t, "evt_1", "charge.refunded"), "")

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookWrongSecret(t *testing.T) {
	r := newTestRouter(t)

	body := eventBody(t, "evt_1", "charge.refunded")
	w := postWebhook(r, body, signatureHeader(body, "whsec_wrong", time.Now()))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookTamperedPayload(t *testing.T) {
	r := newTestRouter(t)

	body := eventBody(t, "evt_1", "charge.refunded")
	header := signatureHeader(body, "whsec_test", time.Now())
	tampered := bytes.Replace(body, []byte("evt_1"), []byte("evt_2"), 1)

	w := postWebhook(r, tampered, header)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookStaleTimestamp(t *testing.T) {
	r := newTestRouter(t)

	body := eventBody(t, "evt_1", "charge.refunded")
	w := postWebhook(r, body, signatureHeader(body, "whsec_test", time.Now().Add(-time.Hour)))

	require.Equal(t, http.StatusBadRequest, w.Code)
}
