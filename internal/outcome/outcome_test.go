package outcome_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirokisan/seatres/internal/outcome"
	"github.com/hirokisan/seatres/internal/repository"
)

func TestClassify(t *testing.T) {
	t.Run("classifiable error carries its own result", func(t *testing.T) {
		err := &repository.SeatsUnavailableError{SeatIDs: []int64{3, 7}}

		res := outcome.Classify(err)
		assert.Equal(t, outcome.KindConflict, res.Kind)
		assert.Equal(t, []int64{3, 7}, res.UnavailableSeatIDs)
	})

	t.Run("wrapped classifiable error", func(t *testing.T) {
		err := fmt.Errorf("claim: %w", &repository.SeatsUnavailableError{SeatIDs: []int64{5}})

		res := outcome.Classify(err)
		assert.Equal(t, outcome.KindConflict, res.Kind)
		assert.Equal(t, []int64{5}, res.UnavailableSeatIDs)
	})

	t.Run("unknown error is internal", func(t *testing.T) {
		res := outcome.Classify(errors.New("connection reset"))
		assert.Equal(t, outcome.KindInternalError, res.Kind)
	})
}

// A stored result must survive the ledger round trip unchanged, since a
// replayed request observes the original classification verbatim.
func TestResultJSONRoundTrip(t *testing.T) {
	original := outcome.Success(uuid.New(), []int64{1, 2, 3})

	b, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded outcome.Result
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, original, decoded)
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, outcome.KindConflict, outcome.Conflict([]int64{1}).Kind)
	assert.Equal(t, "seat list is empty", outcome.ValidationError("seat list is empty").Reason)
	assert.Equal(t, "event", outcome.NotFound("event").Resource)
	assert.Equal(t, outcome.KindInternalError, outcome.InternalError().Kind)
}
