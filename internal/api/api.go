package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"gridexchange/internal/exchange"
	"gridexchange/internal/model"
	"gridexchange/internal/providers"
	"gridexchange/internal/store"
)

type Handler struct {
	source     providers.ReadingSource
	normalizer *exchange.Normalizer
	store      store.Store
	logger     *slog.Logger
}

// New wires the handler. st may be nil, in which case /v1/stored is not served.
func New(source providers.ReadingSource, normalizer *exchange.Normalizer, st store.Store, logger *slog.Logger) *Handler {
	if normalizer == nil {
		normalizer = exchange.NewNormalizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{source: source, normalizer: normalizer, store: st, logger: logger}
}

func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "source": h.source.Name()})
	})

	v1 := router.Group("/v1")
	v1.GET("/exchange", h.getExchange)
	v1.GET("/exchanges", h.listExchanges)
	if h.store != nil {
		v1.GET("/stored", h.listStored)
	}
	return router
}

func (h *Handler) getExchange(c *gin.Context) {
	zoneA := c.Query("zone_key1")
	zoneB := c.Query("zone_key2")
	if zoneA == "" || zoneB == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zone_key1 and zone_key2 are required"})
		return
	}

	record, err := h.normalizer.FetchExchange(c.Request.Context(), h.source, zoneA, zoneB)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) listExchanges(c *gin.Context) {
	records, err := h.normalizer.FetchAll(c.Request.Context(), h.source)
	if err != nil && len(records) == 0 {
		h.writeError(c, err)
		return
	}
	if err != nil {
		h.logger.Warn("partial exchange set", slog.Any("error", err))
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": records})
}

func (h *Handler) listStored(c *gin.Context) {
	stored, err := h.store.ListLatest(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if stored == nil {
		stored = []model.StoredExchange{}
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": stored})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("exchange request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, exchange.ErrUnknownPair):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrMissingReading), errors.Is(err, exchange.ErrMalformedMagnitude):
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}
