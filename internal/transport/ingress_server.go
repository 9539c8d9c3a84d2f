package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"smartgrid-monitor/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Enqueuer 接入队列
type Enqueuer interface {
	Enqueue(ctx context.Context, ev *models.TelemetryEvent) error
	Len() int
}

// IngressHandler HTTP 接入处理
type IngressHandler struct {
	queue   Enqueuer
	timeout time.Duration
	logger  *zap.Logger
}

// NewIngressHandler timeout 为入队最长等待时间，超时返回 503
func NewIngressHandler(queue Enqueuer, timeout time.Duration, logger *zap.Logger) *IngressHandler {
	return &IngressHandler{
		queue:   queue,
		timeout: timeout,
		logger:  logger,
	}
}

// PostMetrics POST /post_metrics
func (h *IngressHandler) PostMetrics(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	ev, err := models.ParseTelemetryEvent(body)
	if err != nil {
		h.logger.Warn("Rejected telemetry", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.queue.Enqueue(ctx, ev); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.logger.Warn("Ingress queue full",
				zap.Int("turbine_number", ev.TurbineNumber),
				zap.Int("queue_depth", h.queue.Len()),
			)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingress queue unavailable"})
		return
	}

	c.JSON(http.StatusOK, nil)
}

// Healthz GET /healthz
func (h *IngressHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"queue_depth": h.queue.Len(),
	})
}

// NewRouter 注册接入路由
func NewRouter(h *IngressHandler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.POST(MetricsPath, h.PostMetrics)
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			logger.Warn("HTTP request",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("latency", time.Since(start)),
			)
			return
		}
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Server grid-monitor 的 HTTP 接入服务
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer 创建 HTTP 服务
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{httpServer: s, logger: logger}
}

// Run 启动服务直到 ctx 结束，随后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting grid-monitor HTTP server", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Stopping grid-monitor HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
