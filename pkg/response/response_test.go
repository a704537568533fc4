package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	handler(c)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

func TestSuccess(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Success(c, map[string]string{"title": "Alpha"})
	})

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := parseResponse(t, w)
	if resp.Code != 0 {
		t.Errorf("expected code 0, got %d", resp.Code)
	}
	if resp.Message != "ok" {
		t.Errorf("expected message 'ok', got %q", resp.Message)
	}
}

func TestCreated(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Created(c, map[string]int{"id": 1})
	})

	if w.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, w.Code)
	}
}

func TestForbidden_GenericMessage(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Forbidden(c)
	})

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if resp := parseResponse(t, w); resp.Message != ForbiddenMessage {
		t.Errorf("expected %q, got %q", ForbiddenMessage, resp.Message)
	}
}

func TestError_AppErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"not found", NewNotFound("task not found"), http.StatusNotFound, 404},
		{"forbidden", NewForbidden(), http.StatusForbidden, 403},
		{"validation", NewValidationFailed("invalid member ids", []uint{8}), http.StatusUnprocessableEntity, 422},
		{"wrapped", fmt.Errorf("update: %w", NewNotFound("project not found")), http.StatusNotFound, 404},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(func(c *gin.Context) {
				Error(c, tt.err)
			})
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, expected %d", w.Code, tt.wantStatus)
			}
			if resp := parseResponse(t, w); resp.Code != tt.wantCode {
				t.Errorf("code = %d, expected %d", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestError_PlainErrorHidesCause(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, errors.New("sql: connection refused"))
	})

	resp := parseResponse(t, w)
	if resp.Message != "internal server error" {
		t.Errorf("internal cause leaked: %q", resp.Message)
	}
}

func TestError_ValidationEchoesDetails(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, NewValidationFailed("invalid member ids", map[string][]uint{"invalid_ids": {8}}))
	})

	var raw map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	details, ok := raw["details"].(map[string]interface{})
	if !ok {
		t.Fatalf("details missing: %s", w.Body.String())
	}
	ids, _ := details["invalid_ids"].([]interface{})
	if len(ids) != 1 || ids[0].(float64) != 8 {
		t.Errorf("invalid_ids = %v, expected [8]", ids)
	}
}

func TestKindHelpers(t *testing.T) {
	wrapped := fmt.Errorf("ctx: %w", NewForbidden())

	if !IsForbidden(wrapped) {
		t.Error("IsForbidden should see through wrapping")
	}
	if IsNotFound(wrapped) {
		t.Error("forbidden is not not-found")
	}
	if !IsValidation(NewValidationFailed("bad", nil)) {
		t.Error("IsValidation should match")
	}
	if KindOf(errors.New("x")) != KindInternal {
		t.Error("plain errors are internal")
	}
	if IsNotFound(nil) {
		t.Error("nil is not an error")
	}
}
