package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/logger"
	"github.com/gin-gonic/gin"
)

const maxAuditBody = 2000

// AuditRecorder stores one audit line per write request.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.SystemLog)
}

// AuditLog records write requests (POST/PUT/PATCH/DELETE) through rec.
func AuditLog(rec AuditRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if !isWrite(method) {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = maskSensitiveFields(string(bodyBytes))
			if len(bodySnippet) > maxAuditBody {
				bodySnippet = bodySnippet[:maxAuditBody] + "...[truncated]"
			}
		}

		c.Next()

		var uid *uint
		if userID := GetUserID(c); userID > 0 {
			uid = &userID
		}
		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)

		entry := &models.SystemLog{
			Level:     auditLevel(status),
			Module:    module,
			Action:    action,
			Message:   formatAuditMessage(GetEmail(c), method, c.Request.URL.Path, status),
			UserID:    uid,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Extra: map[string]interface{}{
				"method":     method,
				"path":       c.Request.URL.Path,
				"route":      c.FullPath(),
				"status":     status,
				"body":       bodySnippet,
				"request_id": logger.RequestID(c),
				"audit":      true,
			},
		}
		// the client may already be gone; the line is still wanted
		rec.Record(context.WithoutCancel(c.Request.Context()), entry)
	}
}

func auditLevel(status int) string {
	switch {
	case status >= 500:
		return models.LogLevelError
	case status >= 400:
		return models.LogLevelWarning
	}
	return models.LogLevelInfo
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// parseRouteInfo extracts module and action from a Gin route pattern.
// e.g. "/api/projects/:id/members" + "POST" → module="projects", action="members.create"
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.Trim(strings.TrimPrefix(fullPath, "/api/"), "/")
	if path == "" {
		return "unknown", verb(method)
	}

	var parts []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" && !strings.HasPrefix(seg, ":") {
			parts = append(parts, seg)
		}
	}
	module = parts[0]
	action = verb(method)
	if len(parts) > 1 {
		action = strings.Join(parts[1:], ".") + "." + action
	}
	return module, action
}

func verb(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

func formatAuditMessage(email, method, path string, status int) string {
	if email == "" {
		email = "anonymous"
	}
	outcome := "OK"
	if status < 200 || status >= 300 {
		outcome = "Failed"
	}
	return "[Audit] " + email + " " + method + " " + path + " -> " + outcome
}

var sensitiveField = regexp.MustCompile(`(?i)("(?:password|old_password|new_password|refresh_token|access_token|token|secret)"\s*:\s*)"(?:[^"\\]|\\.)*"`)

// maskSensitiveFields replaces the string values of credential keys in a
// JSON body.
func maskSensitiveFields(body string) string {
	return sensitiveField.ReplaceAllString(body, `$1"***"`)
}
