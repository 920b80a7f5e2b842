package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacsvc/core/pkg/errs"
)

func TestWriteDomainError_ValidationMapsTo422(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/contexts", nil)

	WriteDomainError(w, r, errs.UnknownDimension("country"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body ProblemDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(errs.CodeUnknownDimension), body.Code)
}

func TestWriteDomainError_LookupMapsTo404(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/contexts/x", nil)

	WriteDomainError(w, r, errs.NotFound("context", "x"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteDomainError_OpaqueErrorMapsTo500(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/contexts/x", nil)

	WriteDomainError(w, r, assertError("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type assertError string

func (e assertError) Error() string { return string(e) }
