package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/forever-free1/FlashKV/storage"
	"github.com/forever-free1/FlashKV/storage/logstore"
	"github.com/forever-free1/FlashKV/watch"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ==================== Handler 定义 ====================

// Handler HTTP 请求处理器
type Handler struct {
	// 存储引擎，所有请求通过 Shared 串行化
	store *logstore.Shared

	// 事件通知中心，可以为空
	hub *watch.Hub

	// 指标采集器，为空时不注册 /metrics
	gatherer prometheus.Gatherer

	logger hclog.Logger
}

// NewHandler 创建新的 Handler
//
// 参数：
//   - store: 存储引擎
//   - hub: 事件通知中心
//   - gatherer: 指标采集器
//   - logger: 日志
//
// 返回：
//   - *Handler: Handler 实例
func NewHandler(store *logstore.Shared, hub *watch.Hub, gatherer prometheus.Gatherer, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{
		store:    store,
		hub:      hub,
		gatherer: gatherer,
		logger:   logger.Named("http"),
	}
}

// ==================== API 路由 ====================

// RegisterRoutes 注册所有路由
func (h *Handler) RegisterRoutes(engine *gin.Engine) {
	// 健康检查
	engine.GET("/health", h.HealthCheck)

	if h.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/v1")
	{
		kv := v1.Group("/kv")
		{
			kv.POST("/put", h.Put)
			kv.GET("/get", h.Get)
			kv.DELETE("/delete", h.Delete)
		}

		v1.POST("/admin/erase-all", h.EraseAll)
		v1.GET("/stats", h.Stats)

		// Watch API (SSE 长连接)
		if h.hub != nil {
			v1.GET("/watch", h.Watch)
		}
	}
}

// statusFor 将存储错误映射为 HTTP 状态码
func statusFor(err error) int {
	kind := storage.KindOf(err)
	switch {
	case kind.Recoverable():
		return http.StatusBadRequest
	case kind == storage.KindFullStorage:
		return http.StatusInsufficientStorage
	case kind == storage.KindUnsupported:
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("请求处理失败", "op", op, "error", err)
	}
	c.JSON(status, gin.H{
		"error": op + " failed: " + err.Error(),
		"kind":  storage.KindOf(err).String(),
	})
}

// ==================== API 处理函数 ====================

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Put 请求处理
// POST /v1/kv/put
func (h *Handler) Put(c *gin.Context) {
	type PutRequest struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value"`
	}

	var req PutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request: " + err.Error(),
		})
		return
	}

	if err := h.store.Insert(c.Request.Context(), req.Key, []byte(req.Value)); err != nil {
		h.fail(c, "put", err)
		return
	}

	if h.hub != nil {
		h.hub.NotifyInsert(req.Key, []byte(req.Value))
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ok",
		"key":     req.Key,
	})
}

// Get 请求处理
// GET /v1/kv/get?key=xxx
func (h *Handler) Get(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "key is required",
		})
		return
	}

	value, found, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		h.fail(c, "get", err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "key not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":   key,
		"value": string(value),
	})
}

// Delete 请求处理
// DELETE /v1/kv/delete?key=xxx
func (h *Handler) Delete(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "key is required",
		})
		return
	}

	if err := h.store.Remove(c.Request.Context(), key); err != nil {
		h.fail(c, "delete", err)
		return
	}

	if h.hub != nil {
		h.hub.NotifyRemove(key)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ok",
		"key":     key,
	})
}

// EraseAll 擦除整个存储区间
// POST /v1/admin/erase-all
func (h *Handler) EraseAll(c *gin.Context) {
	if err := h.store.EraseAll(c.Request.Context()); err != nil {
		h.fail(c, "erase_all", err)
		return
	}
	h.logger.Warn("存储区间已通过 API 擦除", "remote", c.ClientIP())

	if h.hub != nil {
		h.hub.NotifyEraseAll()
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ok",
	})
}

// Stats 返回页状态统计
// GET /v1/stats
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ==================== Watch (SSE) ====================

// Watch 处理 Watch 请求
// GET /v1/watch?prefix=xxx
// 使用 Server-Sent Events (SSE) 推送变更事件
func (h *Handler) Watch(c *gin.Context) {
	prefix := c.DefaultQuery("prefix", "")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	watcher := h.hub.Watch(prefix, 256)
	defer h.hub.Unregister(watcher)

	clientGone := c.Request.Context().Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, ": connected\n\n")
	c.Writer.Flush()

	for {
		select {
		case <-clientGone:
			return

		case event, ok := <-watcher.Ch:
			if !ok {
				return
			}
			c.SSEvent(string(event.Type), event)
			c.Writer.Flush()

		case <-ticker.C:
			// 心跳，保持连接
			fmt.Fprintf(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

// ==================== 服务器启动 ====================

// Server HTTP 服务器
type Server struct {
	srv     *http.Server
	engine  *gin.Engine
	handler *Handler
	logger  hclog.Logger
}

// NewServer 创建新的 Server
func NewServer(addr string, store *logstore.Shared, hub *watch.Hub, gatherer prometheus.Gatherer, logger hclog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := NewHandler(store, hub, gatherer, logger)
	handler.RegisterRoutes(engine)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine:  engine,
		handler: handler,
		logger:  handler.logger,
	}
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	// 请求的 context 继承 ctx，关闭时 SSE 连接随之退出
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务启动", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP 服务启动失败: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP 服务关闭失败: %w", err)
	}
	s.logger.Info("HTTP 服务已关闭")
	return nil
}

// ServeHTTP 实现 http.Handler 接口
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}
