package httpgin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/hirokisan/seatres/internal/outcome"
	"github.com/hirokisan/seatres/internal/repository"
	"github.com/hirokisan/seatres/internal/service/admin"
	"github.com/hirokisan/seatres/internal/service/arbiter"
	"github.com/hirokisan/seatres/internal/service/inventory"
)

func TestStatusForResult(t *testing.T) {
	tests := []struct {
		res  outcome.Result
		want int
	}{
		{outcome.Success(uuid.New(), []int64{1}), http.StatusCreated},
		{outcome.Conflict([]int64{1}), http.StatusConflict},
		{outcome.ValidationError("bad"), http.StatusBadRequest},
		{outcome.NotFound("event"), http.StatusNotFound},
		{outcome.InternalError(), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForResult(tt.res), "kind %s", tt.res.Kind)
	}
}

func TestRespondErr(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid seat spec", &repository.InvalidSeatSpecError{Label: "A-1", Reason: "price must be positive"}, http.StatusBadRequest},
		{"admin validation", admin.ErrInvalidCapacity, http.StatusBadRequest},
		{"event missing", inventory.ErrEventNotFound, http.StatusNotFound},
		{"seat missing", inventory.ErrSeatNotFound, http.StatusNotFound},
		{"reservation missing", arbiter.ErrReservationNotFound, http.StatusNotFound},
		{"repository conflict", repository.ErrConflict, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondErr(c, tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 20, parseIntDefault("", 20))
	assert.Equal(t, 5, parseIntDefault("5", 20))
	assert.Equal(t, 20, parseIntDefault("abc", 20))
}
