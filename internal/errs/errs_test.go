package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := errs.Conflict(errs.CodeInvalidTransition, "%s -> %s", "pending", "dispatched")
		assert.Equal(t, "conflict: invalid_transition: pending -> dispatched", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		err := errs.Upstream(errors.New("dial tcp: refused"))
		assert.Equal(t, "upstream failure: upstream_unavailable (cause: dial tcp: refused)", err.Error())
	})

	t.Run("price mismatch", func(t *testing.T) {
		err := errs.PriceMismatch(errs.CodeSubtotalMismatch, decimal.NewFromInt(150), decimal.NewFromInt(200))
		assert.Equal(t, "price mismatch: subtotal_mismatch: claimed 150, expected 200", err.Error())
	})
}

func TestErrorsCanBeUnwrapped(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("creating order: %w", errs.Wrap(errs.ErrInternal, errs.CodeInternal, cause))

	require.ErrorIs(t, err, errs.ErrInternal)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, errs.ErrConflict)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, errs.CodeAlreadyProcessing, errs.CodeOf(errs.Conflict(errs.CodeAlreadyProcessing, "key k1")))
	assert.Equal(t, errs.CodeOrderNotFound, errs.CodeOf(fmt.Errorf("wrapped: %w", errs.NotFound(errs.CodeOrderNotFound, "o1"))))
	assert.Equal(t, errs.CodeInternal, errs.CodeOf(errors.New("plain")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, errs.ErrForbidden, errs.KindOf(errs.Forbidden(errs.CodeWrongBusiness, "b1")))
	assert.Equal(t, errs.ErrValidation, errs.KindOf(errs.Validation(errs.CodeInvalidInput, "items required")))
	assert.Equal(t, errs.ErrInternal, errs.KindOf(errors.New("plain")))
}
