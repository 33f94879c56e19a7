package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"fireway-backend/internal/errs"
	"fireway-backend/pkg/utils"
)

// respondErr maps engine errors onto HTTP statuses. Anything outside the
// known taxonomy is a server fault and must not leak details.
func respondErr(w http.ResponseWriter, err error) {
	var forbidden *errs.ForbiddenError
	switch {
	case errors.Is(err, errs.ErrValidation):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrConflict):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &forbidden):
		if forbidden.RequiredSide != "" {
			utils.RespondJSON(w, http.StatusForbidden, map[string]interface{}{
				"success":       false,
				"error":         forbidden.Reason,
				"required_side": forbidden.RequiredSide,
			})
			return
		}
		utils.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, err.Error())
	default:
		log.Printf("internal error: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
