package handlers

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fireway-backend/internal/errs"
)

func TestRespondErrStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", errs.NewValidationError("latitude", "out of range"), 400},
		{"not found", errs.NewNotFoundError("delivery", "d1"), 404},
		{"conflict", errs.NewConflictError("order is no longer available"), 409},
		{"forbidden", errs.NewForbiddenError("you must clock in before claiming orders"), 403},
		{"unknown", errors.New("disk on fire"), 500},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondErr(rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRespondErrHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	respondErr(rec, errors.New("pq: connection refused"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
}

func TestRespondErrGeofenceIncludesRequiredSide(t *testing.T) {
	rec := httptest.NewRecorder()
	respondErr(rec, errs.NewGeofenceError("you must exit the store area to start delivery", errs.SideOutside))

	assert.Equal(t, 403, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errs.SideOutside, body["required_side"])
}
