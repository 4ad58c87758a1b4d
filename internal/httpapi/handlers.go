package httpapi

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/events"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/version"
)

// GET /health
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"instance":  h.svc.Config().Instance.ID,
		"version":   version.Get(),
		"scheduler": h.svc.Scheduler().IsRunning(),
		"clients":   h.svc.Hub().Stats().Clients,
	})
}

// GET /api/stats
func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"scheduler":   h.svc.Scheduler().Stats(),
		"cache":       h.svc.Cache().Stats(),
		"fanout":      h.svc.Hub().Stats(),
		"breakers":    h.svc.Executor().States(),
		"subscribers": h.svc.Bus().Subscribers(),
	})
}

// DELETE /api/stats
func (h *Handler) clearStats(c *gin.Context) {
	h.svc.Scheduler().ClearStats()
	h.svc.Cache().ResetStats()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GET /api/health
func (h *Handler) healthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Scheduler().HealthStatus())
}

// GET /api/metrics
func (h *Handler) metrics(c *gin.Context) {
	snap, err := h.svc.Metrics(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /api/scheduler/start
func (h *Handler) startScheduler(c *gin.Context) {
	if err := h.svc.StartScheduler(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "running": true})
}

// POST /api/scheduler/stop
func (h *Handler) stopScheduler(c *gin.Context) {
	if err := h.svc.Scheduler().Stop(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "running": false})
}

// POST /api/scheduler/restart
func (h *Handler) restartScheduler(c *gin.Context) {
	if err := h.svc.RestartScheduler(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "running": h.svc.Scheduler().IsRunning()})
}

// PATCH /api/config
func (h *Handler) updateConfig(c *gin.Context) {
	var req configPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.Scheduler().UpdateConfig(req.patch()); err != nil {
		h.fail(c, err)
		return
	}
	cfg := h.svc.Scheduler().Config()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"defaultInterval":      cfg.DefaultInterval.String(),
			"subscriptionInterval": cfg.SubscriptionInterval.String(),
			"pollTimeout":          cfg.PollTimeout.String(),
			"autoRestartFailures":  cfg.AutoRestartFailures,
			"maxRetries":           cfg.Retry.MaxRetries,
			"baseDelay":            cfg.Retry.BaseDelay.String(),
			"maxDelay":             cfg.Retry.MaxDelay.String(),
			"failureThreshold":     cfg.Breaker.FailureThreshold,
			"resetTimeout":         cfg.Breaker.ResetTimeout.String(),
		},
	})
}

// GET /api/targets
func (h *Handler) listTargets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.svc.Scheduler().Targets()})
}

// POST /api/targets
func (h *Handler) addTarget(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.svc.AddTarget(c.Request.Context(), req.target())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": t})
}

// PATCH /api/targets/:name
func (h *Handler) updateTarget(c *gin.Context) {
	var req targetPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.svc.UpdateTarget(c.Request.Context(), c.Param("name"), req.patch())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": t})
}

// DELETE /api/targets/:name
func (h *Handler) removeTarget(c *gin.Context) {
	if err := h.svc.RemoveTarget(c.Request.Context(), c.Param("name")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GET /api/quotes/:symbol
func (h *Handler) quote(c *gin.Context) {
	q, err := h.svc.Gateway().Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": q})
}

// GET /api/quotes?symbols=A,B
func (h *Handler) quotes(c *gin.Context) {
	raw := c.Query("symbols")
	if strings.TrimSpace(raw) == "" {
		badRequest(c, "symbols query parameter is required")
		return
	}
	res, err := h.svc.Gateway().Fetch(c.Request.Context(), strings.Split(raw, ","))
	if err != nil && res == nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = statusOf(err)
	}
	c.JSON(status, res)
}

// GET /api/market
func (h *Handler) market(c *gin.Context) {
	cfg := h.svc.Config().Fanout
	ov, err := h.svc.Gateway().Overview(c.Request.Context(), cfg.MarketSymbols, cfg.IndexSymbols, cfg.TopN)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ov})
}

// GET /api/cache/stats
func (h *Handler) cacheStats(c *gin.Context) {
	st := h.svc.Cache().Stats()
	c.JSON(http.StatusOK, gin.H{
		"stats":   st,
		"hitRate": st.HitRate(),
		"keys":    h.svc.Cache().Keys(),
	})
}

// POST /api/news
func (h *Handler) publishNews(c *gin.Context) {
	var req newsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sent := h.svc.Hub().PublishNews(model.NewsItem{
		Symbol:   req.Symbol,
		Headline: req.Headline,
		Summary:  req.Summary,
		URL:      req.URL,
		Source:   req.Source,
	})
	c.JSON(http.StatusAccepted, gin.H{"success": true, "delivered": sent})
}

// GET /api/events?types=dataUpdate,pollError
func (h *Handler) events(c *gin.Context) {
	var kinds []events.Kind
	if raw := c.Query("types"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			kinds = append(kinds, events.Kind(strings.TrimSpace(k)))
		}
	}

	sub := h.svc.Bus().Subscribe(kinds...)
	defer sub.Close()

	ctx := c.Request.Context()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"timestamp": time.Now().UTC()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		ev, err := sub.Next(ctx)
		if err != nil {
			return false
		}
		c.SSEvent(string(ev.Kind), ev)
		return true
	})
}
