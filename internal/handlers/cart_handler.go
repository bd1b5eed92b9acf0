package handlers

import (
	"errors"
	"net/http"

	"github.com/bellefleur/bellefleur-backend/internal/cart"
	"github.com/bellefleur/bellefleur-backend/internal/catalog"
	"github.com/bellefleur/bellefleur-backend/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionCookie = "bf_session"

// resolveOwner extracts the cart identity from the request: an
// authenticated user id header, or a guest session token (header or
// cookie). When issue is true and no identity exists, a fresh guest
// token is minted and returned alongside the owner.
func resolveOwner(c *gin.Context, issue bool) (cart.Owner, string) {
	if userID := c.GetHeader("X-User-Id"); userID != "" {
		return cart.Owner{UserID: userID}, ""
	}
	token := c.GetHeader("X-Session-Token")
	if token == "" {
		token, _ = c.Cookie(sessionCookie)
	}
	if token == "" && issue {
		token = uuid.NewString()
		return cart.Owner{SessionID: token}, token
	}
	return cart.Owner{SessionID: token}, ""
}

func cartResponse(c *gin.Context, status int, crt *cart.Cart, issuedToken string) {
	body := gin.H{"cart": crt}
	if issuedToken != "" {
		c.SetCookie(sessionCookie, issuedToken, int(cart.GuestCartTTL.Seconds()), "/", "", false, true)
		body["session_token"] = issuedToken
	}
	c.JSON(status, body)
}

func writeCartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
	case errors.Is(err, cart.ErrProductInactive):
		c.JSON(http.StatusConflict, gin.H{"error": "product_inactive"})
	case errors.Is(err, cart.ErrQuantityLimit):
		c.JSON(http.StatusConflict, gin.H{"error": "quantity_limit", "max": cart.MaxQuantity})
	case errors.Is(err, cart.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quantity"})
	case errors.Is(err, cart.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "item_not_found"})
	case errors.Is(err, cart.ErrInvalidOwner):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_identity"})
	case errors.Is(err, catalog.ErrVariantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "variant_not_found"})
	case errors.Is(err, catalog.ErrVariantInactive):
		c.JSON(http.StatusConflict, gin.H{"error": "variant_inactive"})
	case errors.Is(err, catalog.ErrPriceOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_out_of_range"})
	case errors.Is(err, catalog.ErrInvalidProduct):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_product"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
	}
}

// RegisterCartRoutes registers cart and product read routes.
func RegisterCartRoutes(r *gin.Engine, products *catalog.Store, carts *cart.Store, svc *cart.Service) {
	v := validation.New()

	r.GET("/products/:id", func(c *gin.Context) {
		p, err := products.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
			return
		}
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
			return
		}
		resp := gin.H{"product": p}
		if rng, err := catalog.DisplayRange(*p); err == nil {
			resp["display_price"] = rng.Format()
		}
		c.JSON(http.StatusOK, resp)
	})

	r.GET("/cart", func(c *gin.Context) {
		owner, _ := resolveOwner(c, false)
		if !owner.Valid() {
			// no identity yet: an empty cart, no token minted for a read
			cartResponse(c, http.StatusOK, &cart.Cart{Items: []cart.LineItem{}}, "")
			return
		}
		crt, err := carts.Find(c.Request.Context(), owner)
		if err != nil {
			writeCartError(c, err)
			return
		}
		if crt == nil {
			crt = &cart.Cart{Items: []cart.LineItem{}}
		}
		cartResponse(c, http.StatusOK, crt, "")
	})

	r.POST("/cart/items", func(c *gin.Context) {
		var req validation.AddCartItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		owner, issued := resolveOwner(c, true)

		crt, err := svc.AddItem(c.Request.Context(), owner, cart.AddItemInput{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Selector: catalog.Selector{
				VariantID:   req.VariantID,
				VariantName: req.VariantName,
				Index:       req.VariantIndex,
			},
			CustomPrice: req.CustomPrice,
		})
		if err != nil {
			writeCartError(c, err)
			return
		}
		cartResponse(c, http.StatusOK, crt, issued)
	})

	r.PATCH("/cart/items", func(c *gin.Context) {
		var req validation.UpdateQuantityRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		owner, _ := resolveOwner(c, false)

		crt, err := svc.UpdateQuantity(c.Request.Context(), owner, req.ProductID, req.VariantID, req.Quantity)
		if err != nil {
			writeCartError(c, err)
			return
		}
		cartResponse(c, http.StatusOK, crt, "")
	})

	r.DELETE("/cart/items", func(c *gin.Context) {
		var req validation.RemoveCartItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		owner, _ := resolveOwner(c, false)

		crt, err := svc.RemoveItem(c.Request.Context(), owner, req.ProductID, req.VariantID)
		if err != nil {
			writeCartError(c, err)
			return
		}
		cartResponse(c, http.StatusOK, crt, "")
	})

	r.DELETE("/cart", func(c *gin.Context) {
		owner, _ := resolveOwner(c, false)

		crt, err := svc.ClearItems(c.Request.Context(), owner)
		if err != nil {
			writeCartError(c, err)
			return
		}
		cartResponse(c, http.StatusOK, crt, "")
	})
}
