package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rendafacil/movements-service/internal/client"
	"github.com/rendafacil/movements-service/internal/model"
	"github.com/rendafacil/movements-service/internal/repository"
	"github.com/rendafacil/movements-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MovementsHandler handles movements HTTP requests
type MovementsHandler struct {
	movementsService *service.MovementsService
	logger           *zap.Logger
}

// NewMovementsHandler creates a new movements handler
func NewMovementsHandler(movementsService *service.MovementsService, logger *zap.Logger) *MovementsHandler {
	return &MovementsHandler{
		movementsService: movementsService,
		logger:           logger,
	}
}

// GetMovements returns the authenticated investor's movements for a market
// type and period, calendar-indexed by year, month and day.
// GET /api/v1/movements
func (h *MovementsHandler) GetMovements(c *gin.Context) {
	document := c.GetString("document")
	if document == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	marketType := model.MarketType(c.Query("market_type"))
	if !marketType.Valid() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid/Unsupported market type"})
		return
	}

	now := time.Now()
	startDate := model.RetentionEdge(now)
	if startStr := c.Query("start_date"); startStr != "" {
		parsed, err := time.Parse(model.DateFormat, startStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date format. Use YYYY-MM-DD"})
			return
		}
		startDate = parsed
	}

	endDate := model.DateOnly(now)
	if endStr := c.Query("end_date"); endStr != "" {
		parsed, err := time.Parse(model.DateFormat, endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date format. Use YYYY-MM-DD"})
			return
		}
		endDate = parsed
	}

	movements, err := h.movementsService.GetMovements(c.Request.Context(), document, marketType, startDate, endDate)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, movements)
}

// respondError maps the sync error taxonomy onto HTTP statuses. An access
// denial from B3 is the caller's problem, not an internal failure.
func (h *MovementsHandler) respondError(c *gin.Context, err error) {
	var validationErr *model.ValidationError
	var storeErr *repository.StoreError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Reason})
	case errors.Is(err, client.ErrUnauthorizedClientAccess):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized to access B3 API on participant's behalf"})
	case errors.Is(err, client.ErrTooManyRequests):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "B3 is rate limiting, retry later"})
	case errors.As(err, &storeErr):
		h.logger.Error("Movements store failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve movements"})
	default:
		h.logger.Error("Movements sync failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve movements"})
	}
}
