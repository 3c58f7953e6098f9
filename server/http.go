package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"github.com/autom8ter/pathfinder/graph"
	"github.com/autom8ter/pathfinder/metrics"
)

// HTTPOptions configures NewHTTPHandler.
type HTTPOptions struct {
	Logger *zap.Logger
	// Metrics, if set, records requests and serves /metrics.
	Metrics *metrics.Metrics
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPHandler returns the JSON HTTP API for svc.
func NewHTTPHandler(svc *Service, opts HTTPOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), accessLog(opts.Logger))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Gin())
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	h := &httpHandler{svc: svc}
	router.GET("/healthz", h.health)
	v1 := router.Group("/v1")
	{
		v1.POST("/routes", h.addRoute)
		v1.GET("/routes/:from/:to", h.findRoute)
		v1.GET("/routes/:from/:to/quote", h.quoteRoute)
		v1.GET("/routes/:from/:to/cheapest", h.cheapestRoute)
		v1.GET("/edges/:from/:to/cost", h.edgeCost)
		v1.GET("/nodes/:node/neighbors", h.neighbors)
	}
	return router
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type httpHandler struct {
	svc *Service
}

func (h *httpHandler) fail(c *gin.Context, err error) {
	msg := err.Error()
	if st, ok := status.FromError(err); ok {
		msg = st.Message()
	}
	c.AbortWithStatusJSON(httpStatus(err), errorResponse{Error: msg})
}

func (h *httpHandler) node(c *gin.Context, param string) (graph.Node, bool) {
	n, err := graph.ParseNode(c.Param(param))
	if err != nil {
		h.fail(c, errors.Wrapf(ErrInvalidArgument, "%s: %v", param, err))
		return 0, false
	}
	return n, true
}

func (h *httpHandler) pair(c *gin.Context) (graph.Node, graph.Node, bool) {
	from, ok := h.node(c, "from")
	if !ok {
		return 0, 0, false
	}
	to, ok := h.node(c, "to")
	return from, to, ok
}

func (h *httpHandler) health(c *gin.Context) {
	count, err := h.svc.pf.EdgeCount(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"admin":  h.svc.pf.Admin(),
		"edges":  count,
	})
}

func (h *httpHandler) addRoute(c *gin.Context) {
	req := &AddRouteRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, errors.Wrap(ErrInvalidArgument, err.Error()))
		return
	}
	resp, err := h.svc.AddRoute(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *httpHandler) findRoute(c *gin.Context) {
	from, to, ok := h.pair(c)
	if !ok {
		return
	}
	resp, err := h.svc.FindRoute(c.Request.Context(), &RouteRequest{From: from, To: to})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *httpHandler) quoteRoute(c *gin.Context) {
	from, to, ok := h.pair(c)
	if !ok {
		return
	}
	resp, err := h.svc.QuoteRoute(c.Request.Context(), &RouteRequest{From: from, To: to})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *httpHandler) cheapestRoute(c *gin.Context) {
	from, to, ok := h.pair(c)
	if !ok {
		return
	}
	resp, err := h.svc.CheapestRoute(c.Request.Context(), &RouteRequest{From: from, To: to})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *httpHandler) edgeCost(c *gin.Context) {
	from, to, ok := h.pair(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetEdgeCost(c.Request.Context(), &EdgeCostRequest{From: from, To: to})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *httpHandler) neighbors(c *gin.Context) {
	node, ok := h.node(c, "node")
	if !ok {
		return
	}
	resp, err := h.svc.Neighbors(c.Request.Context(), &NeighborsRequest{Node: node})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
