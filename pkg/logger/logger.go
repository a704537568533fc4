// Package logger wraps a process-wide zerolog logger and the Gin request
// middleware built on it.
package logger

import (
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// RequestIDHeader is read from the request when present and always
	// echoed on the response.
	RequestIDHeader = "X-Request-ID"
	// ContextRequestID is the gin context key holding the request id.
	ContextRequestID = "request_id"
)

// query parameters whose values never reach the log
var redactedParams = []string{"token", "access_token", "refresh_token"}

var log zerolog.Logger

// Init configures the global logger. level is a zerolog level name and
// defaults to info. format is "json" or "console"; empty picks console at
// debug level and JSON otherwise.
func Init(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format == "" && lvl == zerolog.DebugLevel {
		format = "console"
	}

	var w io.Writer = os.Stdout
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	SetOutput(w, lvl)
}

// SetOutput replaces the sink.
func SetOutput(w io.Writer, lvl zerolog.Level) {
	log = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func init() {
	Init("info", "")
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }

func Infof(format string, v ...interface{})  { log.Info().Msgf(format, v...) }
func Warnf(format string, v ...interface{})  { log.Warn().Msgf(format, v...) }
func Errorf(format string, v ...interface{}) { log.Error().Msgf(format, v...) }

// Fatalf logs at fatal level and exits.
func Fatalf(format string, v ...interface{}) {
	log.Fatal().Msgf(format, v...)
}

// RequestID returns the id GinLogger assigned to the request, if any.
func RequestID(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}

// GinLogger logs one line per request. It assigns a request id before the
// handlers run, and logs the matched route alongside the raw path.
// Health and metrics probes are logged at debug level.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Header(RequestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		case path == "/health" || path == "/metrics":
			event = log.Debug()
		default:
			event = log.Info()
		}

		if uid, ok := c.Get("user_id"); ok {
			event = event.Interface("user_id", uid)
		}
		if q := redactQuery(c.Request.URL.RawQuery); q != "" {
			event = event.Str("query", q)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", path).
			Int("status", status).
			Str("ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Int("size", c.Writer.Size()).
			Msg("request")
	}
}

// redactQuery masks credential parameters. Unparseable queries are
// dropped whole since they may still carry a token.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparseable]"
	}
	for _, name := range redactedParams {
		if _, ok := values[name]; ok {
			values.Set(name, "***")
		}
	}
	// Encode escapes the mask; unescape it for readability.
	return strings.ReplaceAll(values.Encode(), "%2A%2A%2A", "***")
}

// GinRecovery turns a panic into the standard 500 envelope and logs it
// with the request id.
func GinRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error().
			Interface("panic", recovered).
			Str("request_id", RequestID(c)).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("ip", c.ClientIP()).
			Msg("panic recovered")
		c.AbortWithStatusJSON(500, gin.H{"code": 500, "message": "internal server error"})
	})
}
