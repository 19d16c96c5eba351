package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connectivity reports whether the remote store answered the last probe.
type Connectivity interface {
	Online() bool
}

// QueueLength reports how many sales wait for replay.
type QueueLength interface {
	Len(ctx context.Context) (int, error)
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	pool  *pgxpool.Pool
	link  Connectivity
	queue QueueLength
}

// NewHealthHandler creates a new health handler. pool may be nil.
func NewHealthHandler(pool *pgxpool.Pool, link Connectivity, queue QueueLength) *HealthHandler {
	return &HealthHandler{pool: pool, link: link, queue: queue}
}

// Live handles liveness probe.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles readiness probe. A terminal is ready while offline because
// sales are queued; only an unreadable local queue makes it unready.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	remote := "online"
	if !h.link.Online() {
		remote = "offline"
	}

	pending, err := h.queue.Len(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": map[string]string{
				"remote":        remote,
				"offline_queue": "unreadable: " + err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]any{
			"remote":        remote,
			"offline_queue": pending,
		},
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":    "possync",
		"online": h.link.Online(),
	}
	if h.pool != nil {
		stat := h.pool.Stat()
		body["database"] = map[string]any{
			"total_conns":    stat.TotalConns(),
			"acquired_conns": stat.AcquiredConns(),
			"idle_conns":     stat.IdleConns(),
			"max_conns":      stat.MaxConns(),
		}
	}
	c.JSON(http.StatusOK, body)
}
