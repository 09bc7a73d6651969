package journal

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ksred/tradejournal/internal/auth"
	"github.com/ksred/tradejournal/pkg/response"
)

// GinHandlers contains HTTP handlers for journal endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for journal endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateTradeHandler handles POST requests recording a new trade
func (h *GinHandlers) CreateTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var form TradeForm
		if err := c.ShouldBindJSON(&form); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		trade, err := h.service.Create(c.Request.Context(), auth.CurrentIdentity(c), form)
		if errors.Is(err, ErrUnauthenticated) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, trade, err)
	}
}

// ListTradesHandler handles GET requests listing the caller's trades.
// Query parameters: sort (createdAt, openTs, closeTs, underlying) and
// order (asc or desc, default desc).
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := ListOptions{
			Sort:       c.Query("sort"),
			Descending: !strings.EqualFold(c.DefaultQuery("order", "desc"), "asc"),
		}

		trades, err := h.service.List(c.Request.Context(), auth.CurrentIdentity(c), opts)
		if errors.Is(err, ErrUnauthenticated) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, trades, err)
	}
}

// GetTradeHandler handles GET requests for a single trade
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.Get(c.Request.Context(), auth.CurrentIdentity(c), c.Param("trade_id"))
		if errors.Is(err, ErrUnauthenticated) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, trade, err)
	}
}

// UpdateTradeHandler handles PUT requests replacing a trade
func (h *GinHandlers) UpdateTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var form TradeForm
		if err := c.ShouldBindJSON(&form); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		trade, err := h.service.Update(c.Request.Context(), auth.CurrentIdentity(c), c.Param("trade_id"), form)
		if errors.Is(err, ErrUnauthenticated) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, trade, err)
	}
}

// DeleteTradeHandler handles DELETE requests soft deleting a trade
func (h *GinHandlers) DeleteTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID := c.Param("trade_id")
		err := h.service.Delete(c.Request.Context(), auth.CurrentIdentity(c), tradeID)
		if errors.Is(err, ErrUnauthenticated) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, gin.H{"trade_id": tradeID, "deleted": true}, err)
	}
}

// VocabularyHandler returns the accepted strategy and sentiment tags
func (h *GinHandlers) VocabularyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.Vocabulary())
	}
}
