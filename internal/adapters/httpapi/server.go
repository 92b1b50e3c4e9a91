// Package httpapi exposes the case-note engines over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/example/casenotes/internal/ports/primary"
)

const serviceName = "casenotes"

// Services bundles the primary ports the server routes to.
type Services struct {
	Sync           primary.SyncService
	Migration      primary.MigrationService
	Move           primary.MoveService
	Admin          primary.AdminService
	Reconciliation primary.ReconciliationService
	Query          primary.CaseNoteQueryService
}

// Server is the HTTP surface. Handlers only translate between the wire and
// the primary ports.
type Server struct {
	services Services
	router   *gin.Engine
	logger   *slog.Logger
	now      func() time.Time
}

// NewServer creates a Server. metrics, when non-nil, is served on /metrics.
func NewServer(services Services, metrics http.Handler, logger *slog.Logger) *Server {
	router := gin.New()

	s := &Server{
		services: services,
		router:   router,
		logger:   logger,
		now:      time.Now,
	}

	router.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		requestID(),
		accessLog(logger),
	)

	router.GET("/health", s.handleHealth)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	router.PUT("/sync/case-notes", s.handleSync)
	router.PUT("/sync/case-notes/bulk", s.handleSyncBulk)
	router.POST("/migrate/persons/:person/case-notes", s.handleMigrate)
	router.PUT("/move/case-notes", s.handleMove)

	admin := router.Group("/admin/case-notes")
	{
		admin.PUT("/:id", s.handleReplace)
		admin.DELETE("/:id", s.handleDelete)
	}

	router.POST("/reconcile/persons/:person/alerts", s.handleReconcile)

	notes := router.Group("/case-notes")
	{
		notes.GET("/:id", s.handleGetCaseNote)
		notes.GET("/:id/deleted", s.handleListDeleted)
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
