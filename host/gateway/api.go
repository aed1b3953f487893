package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"radiolink/core"
)

// registerBody is the POST body of a register operation
type registerBody struct {
	Op    string `json:"op" binding:"required,oneof=get set"`
	Value uint32 `json:"value"`
}

// NewRouter builds the gateway HTTP API. metrics may be nil.
func NewRouter(g *Gateway, metrics http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if g.engine.State() != core.StateInit {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/link", g.linkStatus)
	v1.GET("/queue", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pending": g.queue.Pending()})
	})
	v1.GET("/nodes", g.listNodes)
	v1.GET("/nodes/:id", g.getNode)
	v1.POST("/nodes/:id/registers/:reg", g.registerOp)
	return r
}

// NewHTTPServer wraps h in a server listening on addr
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{Addr: addr, Handler: h}
}

func (g *Gateway) linkStatus(c *gin.Context) {
	s := g.engine.Stats()
	c.JSON(http.StatusOK, gin.H{
		"id":           g.engine.ID(),
		"role":         g.engine.Role().String(),
		"state":        g.engine.State().String(),
		"active":       g.engine.IsActive(),
		"hasOutgoing":  g.engine.HasOutgoing(),
		"sent":         s.Sent,
		"acknowledged": s.Acknowledged,
		"sendFailures": s.SendFailures,
		"received":     s.Received,
		"acksSent":     s.AcksSent,
		"dropped":      s.Dropped,
	})
}

func (g *Gateway) listNodes(c *gin.Context) {
	if g.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry disabled"})
		return
	}
	nodes, err := g.registry.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

func parseNode(c *gin.Context) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid node id"})
		return 0, false
	}
	return uint32(id), true
}

func (g *Gateway) getNode(c *gin.Context) {
	id, ok := parseNode(c)
	if !ok {
		return
	}
	if g.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry disabled"})
		return
	}
	n, err := g.registry.Get(id)
	if errors.Is(err, ErrUnknownNode) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, n)
}

func (g *Gateway) registerOp(c *gin.Context) {
	id, ok := parseNode(c)
	if !ok {
		return
	}
	reg, err := strconv.ParseUint(c.Param("reg"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid register"})
		return
	}
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := GetRegister(id, uint16(reg))
	if body.Op == "set" {
		req = SetRegister(id, uint16(reg), body.Value)
	}
	if err := g.Submit(req); err != nil {
		g.log.Warn("api command refused", zap.Stringer("request", req), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": req})
}
