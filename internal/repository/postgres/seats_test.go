package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirokisan/seatres/internal/domain"
	"github.com/hirokisan/seatres/internal/repository"
)

func TestValidateSpecs(t *testing.T) {
	valid := func() []domain.SeatSpec {
		return []domain.SeatSpec{
			{Label: "A-1", PriceCents: 2500},
			{Label: "A-2", PriceCents: 2500},
		}
	}

	t.Run("valid batch", func(t *testing.T) {
		assert.NoError(t, validateSpecs(valid()))
	})

	t.Run("empty label", func(t *testing.T) {
		specs := valid()
		specs[1].Label = ""

		var spec *repository.InvalidSeatSpecError
		require.ErrorAs(t, validateSpecs(specs), &spec)
		assert.Equal(t, "empty label", spec.Reason)
	})

	t.Run("non-positive price", func(t *testing.T) {
		specs := valid()
		specs[0].PriceCents = 0

		var spec *repository.InvalidSeatSpecError
		require.ErrorAs(t, validateSpecs(specs), &spec)
		assert.Equal(t, "non-positive price", spec.Reason)
	})

	t.Run("duplicate label in batch", func(t *testing.T) {
		specs := valid()
		specs[1].Label = specs[0].Label

		var spec *repository.InvalidSeatSpecError
		require.ErrorAs(t, validateSpecs(specs), &spec)
		assert.Equal(t, "duplicate label in batch", spec.Reason)
	})
}

func TestTranslateBatchErr(t *testing.T) {
	t.Run("unique violation names the colliding label", func(t *testing.T) {
		err := translateBatchErr(&pgconn.PgError{
			Code:   "23505",
			Detail: "Key (event_id, label)=(3, A-17) already exists.",
		})

		var spec *repository.InvalidSeatSpecError
		require.ErrorAs(t, err, &spec)
		assert.Equal(t, "A-17", spec.Label)
		assert.Equal(t, "duplicate label for event", spec.Reason)
	})

	t.Run("missing detail names no label", func(t *testing.T) {
		err := translateBatchErr(&pgconn.PgError{Code: "23505"})

		var spec *repository.InvalidSeatSpecError
		require.ErrorAs(t, err, &spec)
		assert.Empty(t, spec.Label)
	})

	t.Run("other errors pass through translation", func(t *testing.T) {
		err := translateBatchErr(errors.New("connection reset"))

		var spec *repository.InvalidSeatSpecError
		assert.False(t, errors.As(err, &spec))
	})
}

func TestDuplicateLabel(t *testing.T) {
	assert.Equal(t, "A-1", duplicateLabel("Key (event_id, label)=(1, A-1) already exists."))
	assert.Equal(t, "", duplicateLabel("no key detail here"))
	assert.Equal(t, "", duplicateLabel("Key (event_id, label)=(broken"))
}
