package handlers

import (
	"net/http"

	"fireway-backend/internal/models"
	"fireway-backend/internal/store"
	"fireway-backend/pkg/utils"
)

// ListDrivers returns all driver accounts for the staff assign view.
func ListDrivers(ledger store.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drivers, err := ledger.ListUsersByRole(models.RoleDriver)
		if err != nil {
			respondErr(w, err)
			return
		}

		out := make([]models.UserResponse, 0, len(drivers))
		for _, d := range drivers {
			out = append(out, d.ToUserResponse())
		}
		utils.RespondJSON(w, http.StatusOK, out)
	}
}
