// Package httpapi is a thin HTTP surface over the Driver Contract's
// bulk-retrieval operations, and nothing else: no mutation, no query
// DSL.
package httpapi

import (
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/driver"
)

// Server serves the retrieval API for one opened Driver.
type Server struct {
	driver driver.Driver
	logger *zap.Logger
}

// New constructs a Server over d.
func New(d driver.Driver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{driver: d, logger: logger}
}

// SetupRouter builds the gin engine with recovery and request logging,
// serving the five retrieval operations under /api/v1.
func (s *Server) SetupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(RecoveryMiddleware(s.logger))
	router.Use(LoggerMiddleware(s.logger))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/method", s.getMethod)
		v1.GET("/structure", s.getProgramStructure)
		v1.GET("/neighbours/:id", s.getNeighbours)
		v1.GET("/graph", s.getWholeGraph)
		v1.GET("/ids", s.getVertexIDs)

		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})
	}

	return router
}

func (s *Server) getMethod(c *gin.Context) {
	fullName := c.Query("fullName")
	if fullName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fullName is required"})
		return
	}
	signature := c.Query("signature")
	includeBody := c.DefaultQuery("includeBody", "true") != "false"

	sub, err := s.driver.GetMethod(c.Request.Context(), fullName, signature, includeBody)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ToSubgraphDTO(sub))
}

func (s *Server) getProgramStructure(c *gin.Context) {
	sub, err := s.driver.GetProgramStructure(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ToSubgraphDTO(sub))
}

func (s *Server) getNeighbours(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}
	sub, err := s.driver.GetNeighbours(c.Request.Context(), &cpg.Node{ID: id})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ToSubgraphDTO(sub))
}

func (s *Server) getWholeGraph(c *gin.Context) {
	sub, err := s.driver.GetWholeGraph(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ToSubgraphDTO(sub))
}

func (s *Server) getVertexIDs(c *gin.Context) {
	lo, err := strconv.ParseInt(c.DefaultQuery("lo", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lo must be an integer"})
		return
	}
	hi, err := strconv.ParseInt(c.DefaultQuery("hi", strconv.FormatInt(int64(1)<<62, 10)), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hi must be an integer"})
		return
	}
	ids, err := s.driver.GetVertexIDs(c.Request.Context(), lo, hi)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

// LoggerMiddleware logs each request's method, path, and client.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)
		c.Next()
	}
}

// RecoveryMiddleware converts a handler panic into a 500 with a logged
// stack instead of tearing the server down.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("stack", string(debug.Stack())),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				c.Abort()
			}
		}()
		c.Next()
	}
}
