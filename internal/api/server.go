// Package api is the HTTP surface of inkpilot: turns, scoped edits,
// artifact saves and sync, and the editor bridge.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/user/inkpilot/internal/bus"
	"github.com/user/inkpilot/internal/edit"
	"github.com/user/inkpilot/internal/gateway"
	"github.com/user/inkpilot/internal/media"
	"github.com/user/inkpilot/internal/state"
	"github.com/user/inkpilot/internal/syncer"
	"github.com/user/inkpilot/internal/types"
)

// Deps are the components the server routes to. Documents is optional;
// when set, the server also acts as a remote document store.
type Deps struct {
	Gateway       *gateway.Gateway
	Modifier      *edit.Modifier
	Sync          *syncer.Engine
	Snapshots     types.SnapshotStore
	Conversations types.ConversationStore
	Messages      types.MessageLog
	Bus           *bus.Bus
	Media         *media.Resolver
	Documents     *state.DocumentStore
	UploadsDir    string
	Token         string
	DefaultModel  string
}

// Server routes HTTP requests to the core.
type Server struct {
	deps   Deps
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{deps: d, router: gin.New()}

	r := s.router
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "HEAD", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/media/*ref", s.handleMedia)

	api := r.Group("/api")
	{
		api.POST("/turns", s.handleTurn)
		api.POST("/modifications", s.handleModification)
		api.POST("/uploads", s.handleUpload)

		api.PUT("/artifacts/:id/content", s.handleSaveContent)
		api.GET("/artifacts/:id/snapshots", s.handleSnapshots)
		api.GET("/artifacts/:id/sync", s.handleSyncStatus)
		api.POST("/artifacts/:id/sync", s.handleSyncArtifact)
		api.GET("/sync", s.handleSyncStatuses)
		api.POST("/sync", s.handleSweep)
		api.POST("/connectivity", s.handleConnectivity)

		api.GET("/editor/events", s.handleEditorEvents)
		api.POST("/editor/document-content", s.handleDocumentContent)

		api.GET("/conversations", s.handleConversations)
		api.GET("/conversations/:id/messages", s.handleMessages)
	}

	if d.Documents != nil {
		docs := r.Group("/documents")
		docs.Use(bearerAuth(d.Token))
		{
			docs.HEAD("/:id", s.handleDocumentExists)
			docs.GET("/:id", s.handleDocumentGet)
			docs.POST("", s.handleDocumentCreate)
			docs.PUT("/:id", s.handleDocumentUpdate)
		}
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Request.URL.Path == "/healthz" {
			level = slog.LevelDebug
		}
		slog.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func bearerAuth(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") || strings.TrimSpace(h[7:]) != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	var pve *edit.ProtocolValidationError
	switch {
	case errors.Is(err, gateway.ErrEmptyTurn):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrConversationNotFound), errors.Is(err, state.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrDocumentExists):
		return http.StatusConflict
	case errors.As(err, &pve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, syncer.ErrOffline):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
