package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/primary"
)

// errorResponse is the wire format of every failed request.
type errorResponse struct {
	Code      errs.Code `json:"code"`
	Message   string    `json:"message"`
	Details   []string  `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
}

func toErrorResponse(err error) errorResponse {
	code := errs.CodeOf(err)
	resp := errorResponse{Code: code, Message: "internal error", Retryable: code.Retryable()}
	if code == errs.Internal {
		return resp
	}
	var coded *errs.Error
	if errors.As(err, &coded) {
		resp.Message = coded.Message
		resp.Details = coded.Details
	}
	return resp
}

func (s *Server) fail(c *gin.Context, err error) {
	resp := toErrorResponse(err)
	if resp.Code == errs.Internal {
		s.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(resp.Code.HTTPStatus(), resp)
}

// bind decodes the JSON body into dst. Field constraints are checked by the
// services, not here.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return errs.Wrap(errs.ValidationFailure, err, "malformed request body").WithDetails(err.Error())
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (s *Server) handleSync(c *gin.Context) {
	by, err := actorFrom(c, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}

	var req primary.SyncRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.services.Sync.Sync(c.Request.Context(), by, req)
	if err != nil {
		s.fail(c, err)
		return
	}

	status := http.StatusOK
	if result.Action == primary.SyncCreated {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// syncResultResponse is one entry of a bulk sync response.
type syncResultResponse struct {
	ID       string             `json:"id,omitempty"`
	LegacyID int64              `json:"legacyId"`
	Action   primary.SyncAction `json:"action,omitempty"`
	Error    *errorResponse     `json:"error,omitempty"`
}

func (s *Server) handleSyncBulk(c *gin.Context) {
	by, err := actorFrom(c, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}

	var reqs []primary.SyncRequest
	if err := bind(c, &reqs); err != nil {
		s.fail(c, err)
		return
	}

	results, err := s.services.Sync.SyncAll(c.Request.Context(), by, reqs)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := make([]syncResultResponse, 0, len(results))
	for _, r := range results {
		entry := syncResultResponse{ID: r.ID, LegacyID: r.LegacyID, Action: r.Action}
		if r.Err != nil {
			e := toErrorResponse(r.Err)
			entry.Error = &e
		}
		resp = append(resp, entry)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMigrate(c *gin.Context) {
	by, err := actorFrom(c, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}

	var reqs []primary.MigrationRequest
	if err := bind(c, &reqs); err != nil {
		s.fail(c, err)
		return
	}

	results, err := s.services.Migration.Migrate(c.Request.Context(), by, c.Param("person"), reqs)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleMove(c *gin.Context) {
	by, err := actorFrom(c, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}

	var req primary.MoveRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.services.Move.Move(c.Request.Context(), by, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleReplace(c *gin.Context) {
	by, err := actorFrom(c, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}

	var req primary.ReplaceRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}

	note, err := s.services.Admin.Replace(c.Request.Context(), by, c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

// handleDelete takes the reason from the JSON body, or from the reason query
// parameter when the body is empty.
func (s *Server) handleDelete(c *gin.Context) {
	by, err := actorFrom(c, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}

	var req primary.DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(c, errs.Wrap(errs.ValidationFailure, err, "malformed request body").WithDetails(err.Error()))
		return
	}
	if req.Reason == "" {
		req.Reason = c.Query("reason")
	}

	if err := s.services.Admin.Delete(c.Request.Context(), by, c.Param("id"), req); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReconcile(c *gin.Context) {
	var problems []string
	from, err := time.Parse(time.DateOnly, c.Query("from"))
	if err != nil {
		problems = append(problems, "from: must be a YYYY-MM-DD date")
	}
	to, err := time.Parse(time.DateOnly, c.Query("to"))
	if err != nil {
		problems = append(problems, "to: must be a YYYY-MM-DD date")
	}
	if len(problems) > 0 {
		s.fail(c, errs.Validation("invalid request").WithDetails(problems...))
		return
	}

	summary, err := s.services.Reconciliation.Reconcile(c.Request.Context(), c.Param("person"), from, to)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.logger.DebugContext(c.Request.Context(), "reconcile served",
		slog.String("person", summary.PersonIdentifier),
		slog.Int("active_created", summary.ActiveCreated),
		slog.Int("inactive_created", summary.InactiveCreated),
	)
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleGetCaseNote(c *gin.Context) {
	note, err := s.services.Query.GetCaseNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (s *Server) handleListDeleted(c *gin.Context) {
	deleted, err := s.services.Query.ListDeleted(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, deleted)
}
