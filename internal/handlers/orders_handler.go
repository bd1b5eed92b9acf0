package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/bellefleur/bellefleur-backend/internal/aws"
	"github.com/bellefleur/bellefleur-backend/internal/orders"
	"github.com/bellefleur/bellefleur-backend/internal/validation"
	"github.com/gin-gonic/gin"
)

// RegisterOrdersRoutes registers order read and admin status transition routes.
func RegisterOrdersRoutes(r *gin.Engine, store *orders.Store, publisher *aws.Publisher) {
	v := validation.New()

	r.GET("/orders/:id", func(c *gin.Context) {
		o, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
			return
		}
		if o == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order":        o,
			"status_label": orders.StatusLabel(o.Status),
			"allowed_next": orders.AllowedNext(o.Status),
		})
	})

	r.PUT("/orders/:id/status", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.UpdateStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		if !orders.IsValidStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_status", "status": req.Status})
			return
		}

		o, err := store.Get(ctx, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
			return
		}
		if o == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}

		previous := o.Status
		entry, err := orders.ApplyTransition(o, req.Status, req.Note, time.Now().UTC())
		if err != nil {
			var ite *orders.InvalidTransitionError
			if errors.As(err, &ite) {
				c.JSON(http.StatusConflict, gin.H{
					"error":        "invalid_transition",
					"current":      ite.Current,
					"attempted":    ite.Attempted,
					"allowed_next": ite.Allowed,
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_status", "status": req.Status})
			return
		}

		if previous == req.Status {
			// note-only self transition, no status write and no notification
			if err := store.AppendTimeline(ctx, o.OrderID, entry); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
				return
			}
		} else {
			err := store.ApplyStatus(ctx, o.OrderID, previous, req.Status, entry)
			if errors.Is(err, orders.ErrStatusMismatch) {
				// someone else moved the order between our read and write
				fresh, gerr := store.Get(ctx, o.OrderID)
				resp := gin.H{"error": "status_conflict", "attempted": req.Status}
				if gerr == nil && fresh != nil {
					resp["current"] = fresh.Status
					resp["allowed_next"] = orders.AllowedNext(fresh.Status)
				}
				c.JSON(http.StatusConflict, resp)
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
				return
			}

			// best effort: a lost notification never rolls back the transition
			ev := aws.NotificationEvent{
				Type:      aws.EventStatusChanged,
				OrderID:   o.OrderID,
				NewStatus: req.Status,
				Note:      entry.Note,
			}
			if err := publisher.PublishNotification(ctx, ev, map[string]string{
				"order_id": o.OrderID,
				"type":     aws.EventStatusChanged,
			}); err != nil {
				log.Printf("[orders] status notification publish failed order=%s err=%v", o.OrderID, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"order":        o,
			"status_label": orders.StatusLabel(o.Status),
			"allowed_next": orders.AllowedNext(o.Status),
		})
	})
}
