package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOfUnwrapsWrappedAppError(t *testing.T) {
	err := fmt.Errorf("approve: %w", ConflictingTransition(7))
	assert.Equal(t, ErrConflictingTransition, CodeOf(err))
	assert.True(t, Is(err, ErrConflictingTransition))
	assert.Equal(t, ErrInternal, CodeOf(stderrors.New("boom")))
	assert.Equal(t, ErrorCode(0), CodeOf(nil))
}

func TestRateLimitExceededCarriesDetails(t *testing.T) {
	next := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := RateLimitExceeded("tag", time.Minute, 5, 5, next)
	assert.Equal(t, "tag", err.Details["action"])
	assert.Equal(t, next, err.Details["next_available_at"])
	assert.Contains(t, err.Message, "5 of 5")
}

func TestHandleErrorMapsStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleError(c, QuotaExceeded("NEW_USER", 1, 1, time.Now()))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrQuotaExceeded, resp.Code)
	assert.Equal(t, "NEW_USER", resp.Details["tier"])
}

func TestHandleErrorHidesInternalMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleError(c, stderrors.New("dial tcp 10.0.0.1:3306: refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}
