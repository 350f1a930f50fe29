package admin

import (
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// errorResponse is the uniform JSON error shape for every admin endpoint.
type errorResponse struct {
	Error string `json:"error"`
}

// RegisterRoutes wires the pdnsd-ctl command set onto r under /api/v1,
// mirroring the teacher's RegisterRoutes(engine, handler, cfg) shape.
func RegisterRoutes(r *gin.Engine, h Hooks) {
	api := r.Group("/api/v1")

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Status())
	})

	api.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Config())
	})

	api.POST("/server/:label/:action", func(c *gin.Context) {
		if err := h.Server(c.Param("label"), c.Param("action")); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/record/:action", func(c *gin.Context) {
		var body struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if err := h.Record(body.Name, c.Param("action")); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/add", func(c *gin.Context) {
		var body struct {
			Name string `json:"name" binding:"required"`
			Type string `json:"type" binding:"required"`
			Addr string `json:"addr" binding:"required"`
			TTL  int    `json:"ttl"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		typ, ok := parseType(body.Type)
		if !ok {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "admin: unknown record type " + body.Type})
			return
		}
		addr := net.ParseIP(body.Addr)
		if addr == nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "admin: invalid address " + body.Addr})
			return
		}
		ttl := time.Duration(body.TTL) * time.Second
		if err := h.Add(body.Name, typ, addr, ttl); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/neg", func(c *gin.Context) {
		var body struct {
			Name string `json:"name" binding:"required"`
			Type string `json:"type"`
			TTL  int    `json:"ttl" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		typ := packet.TypeNone
		if body.Type != "" {
			var ok bool
			typ, ok = parseType(body.Type)
			if !ok {
				c.JSON(http.StatusBadRequest, errorResponse{Error: "admin: unknown record type " + body.Type})
				return
			}
		}
		if err := h.Neg(body.Name, typ, time.Duration(body.TTL)*time.Second); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/empty-cache", func(c *gin.Context) {
		if err := h.Empty(); err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/dump", func(c *gin.Context) {
		var body struct {
			Path string `json:"path" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if err := h.Dump(body.Path); err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func parseType(s string) (packet.Type, bool) {
	switch s {
	case "a", "A":
		return packet.TypeA, true
	case "aaaa", "AAAA":
		return packet.TypeAAAA, true
	default:
		return packet.TypeNone, false
	}
}
