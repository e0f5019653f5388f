package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blues/ilr/internal/errs"
	"github.com/gin-gonic/gin"
)

func TestAppErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		err       error
		status    int
		code      errs.ErrorCode
		message   string
		retriable bool
	}{
		{"validation", errs.Validation("amount must be positive"), http.StatusBadRequest, errs.CodeValidation, "amount must be positive", false},
		{"wrapped not found", fmt.Errorf("load: %w", errs.NotFound("intent %s", "abc")), http.StatusNotFound, errs.CodeNotFound, "intent abc", false},
		{"conflict", errs.Conflict("transaction already claimed"), http.StatusConflict, errs.CodeConflict, "transaction already claimed", true},
		{"unavailable", errs.Unavailable("get block", errors.New("dial tcp: timeout")), http.StatusServiceUnavailable, errs.CodeUnavailable, "get block unavailable", true},
		{"plain error", errors.New("pq: relation does not exist"), http.StatusInternalServerError, errs.CodeInternal, "internal error", false},
		{"internal", errs.Internal("sum entries", errors.New("overflow")), http.StatusInternalServerError, errs.CodeInternal, "internal error", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/intents/abc", nil)

			AppErrorResponse(c, tc.err)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			var resp Response
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Success || resp.Code != string(tc.code) || resp.Message != tc.message || resp.Retriable != tc.retriable {
				t.Fatalf("response = %+v", resp)
			}
		})
	}
}
