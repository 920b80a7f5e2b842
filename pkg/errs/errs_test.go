package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesCode(t *testing.T) {
	err := UnknownDimension("country")
	assert.True(t, Is(err, CodeUnknownDimension))
	assert.False(t, Is(err, CodeBadSchema))
}

func TestIs_MatchesWrapped(t *testing.T) {
	err := fmt.Errorf("wrapping: %w", NotFound("dimension", "country"))
	assert.True(t, Is(err, CodeNotFound))
}

func TestStore_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Store("PutContext", cause)
	assert.Equal(t, KindStore, err.Kind)
	assert.ErrorIs(t, err, cause)
}

func TestSchemaValidation_IncludesIssues(t *testing.T) {
	err := SchemaValidation("fee", []string{"expected integer, got string"})
	assert.Contains(t, err.Error(), "fee")
	assert.Contains(t, err.Error(), "expected integer")
}
