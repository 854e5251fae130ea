package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanbo/internal/metrics"
	"kanbo/internal/queue"
	"kanbo/internal/services"
)

// HealthHandler 健康检查与指标处理器
type HealthHandler struct {
	db      *gorm.DB
	queue   *queue.Queue
	runFeed *services.RunFeedHub
	logger  *logrus.Logger
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(db *gorm.DB, q *queue.Queue, runFeed *services.RunFeedHub, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, queue: q, runFeed: runFeed, logger: logger}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	GoVersion string                 `json:"go_version"`
	Services  map[string]ServiceInfo `json:"services"`
}

// ServiceInfo 子系统状态
type ServiceInfo struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health 健康检查端点
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).String(),
		GoVersion: runtime.Version(),
		Services:  make(map[string]ServiceInfo),
	}

	start := time.Now()
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		response.Status = "unhealthy"
		response.Services["database"] = ServiceInfo{Status: "unhealthy", Error: err.Error()}
	} else {
		response.Services["database"] = ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// Metrics 运行指标端点
// @Summary 运行指标
// @Description 自动化调度、执行与队列深度的进程内计数器
// @Tags 监控
// @Produce json
// @Router /metrics [get]
func (h *HealthHandler) Metrics(c *gin.Context) {
	dispatched, enqueued, skipped, runs := metrics.AutomationSnapshot()
	rlTotal, rlByPrefix := metrics.RateLimitSnapshot()

	depth, err := h.queue.Depth(c.Request.Context())
	if err != nil {
		h.logger.Warnf("Failed to read queue depth: %v", err)
		depth = -1
	}

	out := gin.H{
		"automation": gin.H{
			"dispatched":  dispatched,
			"enqueued":    enqueued,
			"skipped":     skipped,
			"runs":        runs,
			"queue_depth": depth,
		},
		"rate_limit": gin.H{
			"dropped":   rlTotal,
			"by_prefix": rlByPrefix,
		},
		"timestamp": time.Now(),
	}
	if h.runFeed != nil {
		out["run_feed_clients"] = h.runFeed.ClientCount()
	}

	c.JSON(http.StatusOK, out)
}
