package httpapi

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/casenotes/internal/core/actor"
	"github.com/example/casenotes/internal/ctxutil"
	"github.com/example/casenotes/internal/errs"
)

// Request and actor headers.
const (
	HeaderRequestID       = "X-Request-ID"
	HeaderActorUsername   = "X-Actor-Username"
	HeaderActorID         = "X-Actor-Id"
	HeaderActorName       = "X-Actor-Name"
	HeaderActorSource     = "X-Actor-Source"
	HeaderActorPrivileged = "X-Actor-Privileged"
)

// requestID propagates the caller's request id, or generates one, into the
// request context and the response headers.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// actorFrom builds the acting context from the actor headers, stamped at now.
func actorFrom(c *gin.Context, now time.Time) (actor.Actor, error) {
	username := strings.TrimSpace(c.GetHeader(HeaderActorUsername))
	if username == "" {
		return actor.Actor{}, errs.Validation("missing actor").WithDetails(HeaderActorUsername + ": required")
	}

	source, err := actor.ParseSource(c.GetHeader(HeaderActorSource))
	if err != nil {
		return actor.Actor{}, errs.Validation("invalid actor").WithDetails(HeaderActorSource + ": " + err.Error())
	}

	privileged := false
	if v := c.GetHeader(HeaderActorPrivileged); v != "" {
		privileged, err = strconv.ParseBool(v)
		if err != nil {
			return actor.Actor{}, errs.Validation("invalid actor").WithDetails(HeaderActorPrivileged + ": must be true or false")
		}
	}

	return actor.Actor{
		Username:    username,
		UserID:      c.GetHeader(HeaderActorID),
		DisplayName: c.GetHeader(HeaderActorName),
		Source:      source,
		Privileged:  privileged,
		At:          now,
	}, nil
}
