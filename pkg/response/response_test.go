package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestAcceptedSetsLocation(t *testing.T) {
	c, rec := newContext()
	Accepted(c, map[string]string{"id": "run-1"}, "/api/v1/timetables/runs/run-1")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/v1/timetables/runs/run-1", rec.Header().Get("Location"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"data":{"id":"run-1"}}`, rec.Body.String())
}

func TestErrorAdvertisesRetryWhenUnavailable(t *testing.T) {
	c, rec := newContext()
	Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "timetable queue is full, retry later"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	require.Len(t, c.Errors, 1)

	c, rec = newContext()
	Error(c, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), appErrors.ErrInternal.Code)
}
