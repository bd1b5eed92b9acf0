package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/bellefleur/bellefleur-backend/internal/orders"
	"github.com/bellefleur/bellefleur-backend/internal/payments"
	"github.com/bellefleur/bellefleur-backend/internal/validation"
	"github.com/gin-gonic/gin"
)

// webhookEvent is the slice of the Stripe event envelope we care about.
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// RegisterPaymentsRoutes registers the gateway webhook and the client
// confirmation fallback.
func RegisterPaymentsRoutes(r *gin.Engine, co *payments.Coordinator, webhookSecret string) {
	v := validation.New()

	r.POST("/webhooks/stripe", func(c *gin.Context) {
		if webhookSecret != "" {
			got := c.GetHeader("X-Webhook-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(webhookSecret)) != 1 {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_webhook_secret"})
				return
			}
		}

		var ev webhookEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}

		// only succeeded intents drive order state; acknowledge the rest
		// so the gateway stops redelivering them
		if !strings.EqualFold(ev.Type, "payment_intent.succeeded") {
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": ev.Type})
			return
		}
		if ev.Data.Object.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_payment_intent_id"})
			return
		}

		res, err := co.HandlePaymentSucceeded(c.Request.Context(), ev.Data.Object.ID)
		if errors.Is(err, payments.ErrOrderNotFound) {
			// webhook raced ahead of order creation: let the gateway retry
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true, "outcome": res.Outcome, "order_id": res.Order.OrderID})
	})

	r.POST("/payments/confirm", func(c *gin.Context) {
		var req validation.ConfirmPaymentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		payload := payments.FallbackOrder{
			OrderID:   req.OrderID,
			UserID:    c.GetHeader("X-User-Id"),
			SessionID: resolveSessionToken(c),
			Customer: orders.Customer{
				FirstName: req.Customer.FirstName,
				LastName:  req.Customer.LastName,
				Email:     req.Customer.Email,
				Phone:     req.Customer.Phone,
			},
			Delivery: orders.Delivery{
				Address:    req.Delivery.Address,
				City:       req.Delivery.City,
				PostalCode: req.Delivery.PostalCode,
				Date:       req.Delivery.Date,
				Message:    req.Delivery.Message,
			},
			Items:       toOrderItems(req.Items),
			TotalAmount: req.TotalAmount,
		}

		res, err := co.ConfirmFallback(c.Request.Context(), req.PaymentIntentID, payload)
		if err != nil {
			writePaymentError(c, err)
			return
		}

		switch res.Outcome {
		case payments.OutcomeConfirmed, payments.OutcomeAlreadyConfirmed:
			c.JSON(http.StatusOK, gin.H{"outcome": res.Outcome, "order": res.Order})
		case payments.OutcomeRequiresAction, payments.OutcomeProcessing:
			c.JSON(http.StatusAccepted, gin.H{"outcome": res.Outcome})
		default:
			c.JSON(http.StatusPaymentRequired, gin.H{"outcome": res.Outcome})
		}
	})
}

func resolveSessionToken(c *gin.Context) string {
	if token := c.GetHeader("X-Session-Token"); token != "" {
		return token
	}
	token, _ := c.Cookie(sessionCookie)
	return token
}

func toOrderItems(in []validation.OrderItemPayload) []orders.OrderItem {
	out := make([]orders.OrderItem, 0, len(in))
	for _, it := range in {
		out = append(out, orders.OrderItem{
			ProductID:   it.ProductID,
			Name:        it.Name,
			VariantID:   it.VariantID,
			VariantName: it.VariantName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return out
}

func writePaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payments.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, payments.ErrIncompleteOrderPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "incomplete_order_payload"})
	case errors.Is(err, payments.ErrPaymentIntentMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "payment_intent_mismatch"})
	case strings.Contains(err.Error(), "retrieve payment intent"):
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_unavailable", "detail": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
	}
}
