package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rszirpe/reaserch-ai/internal/gate"
	"github.com/rszirpe/reaserch-ai/internal/repository"
	"github.com/rszirpe/reaserch-ai/internal/router"
)

// Handler exposes the serving and status endpoints.
type Handler struct {
	router *router.Router
	gate   *gate.Gate
	store  *repository.CorpusStore
	logger *zap.Logger
}

// NewHandler creates an API handler.
func NewHandler(r *router.Router, g *gate.Gate, store *repository.CorpusStore, logger *zap.Logger) *Handler {
	return &Handler{router: r, gate: g, store: store, logger: logger}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/search", h.Search)
	r.GET("/status", h.Status)
	r.GET("/health", h.HealthCheck)
}

type searchRequest struct {
	Query string `json:"query"`
}

// Search answers one research question.
func (h *Handler) Search(c *gin.Context) {
	requestID := uuid.New().String()

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}

	h.logger.Info("Search request",
		zap.String("request_id", requestID),
		zap.String("query", query))

	answer, err := h.router.Ask(c.Request.Context(), query)
	if err != nil {
		switch {
		case errors.Is(err, router.ErrNoResults):
			c.JSON(http.StatusNotFound, gin.H{"error": "No search results found"})
		case errors.Is(err, router.ErrNoContent):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not scrape any websites"})
		default:
			h.logger.Error("Search failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	h.logger.Info("Search answered",
		zap.String("request_id", requestID),
		zap.Int("scraped_count", answer.ScrapedCount),
		zap.Bool("using_local_model", answer.UsingLocalModel))

	c.JSON(http.StatusOK, answer)
}

// Status reports the current model status plus the live corpus size.
func (h *Handler) Status(c *gin.Context) {
	status := h.gate.Current()

	total, err := h.store.TotalExamples()
	if err != nil {
		h.logger.Error("Failed to count examples", zap.Error(err))
		total = status.TotalExamples
	}

	c.JSON(http.StatusOK, gin.H{
		"state":                  status.State,
		"total_examples":         total,
		"quality_score":          status.QualityScore,
		"grammar_score":          status.GrammarScore,
		"use_local_model":        status.UseLocalModel,
		"use_grammar_correction": status.UseGrammarCorrection,
		"last_evaluation":        status.LastEvaluation,
		"display":                gate.StatusDisplay(status, total),
	})
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
