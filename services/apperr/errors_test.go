package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("radius", "too big")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("load: %w", NotFound("memory not found"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestErrorMessage(t *testing.T) {
	err := Validation("latitude", "must be between -90 and 90")
	assert.Equal(t, "latitude: must be between -90 and 90", err.Error())
	assert.Equal(t, "latitude", FieldOf(err))
	assert.Equal(t, "must be between -90 and 90", MessageOf(err))

	cause := errors.New("connection reset")
	tr := Transient(cause)
	assert.ErrorIs(t, tr, cause)
	assert.True(t, Is(tr, KindTransient))
	assert.Equal(t, "internal server error", MessageOf(cause))
}
