package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fireway-backend/internal/middleware"
	"fireway-backend/internal/models"
	"fireway-backend/internal/store"
	"fireway-backend/pkg/utils"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	OK    bool                 `json:"ok"`
	Token string               `json:"token,omitempty"`
	User  *models.UserResponse `json:"user,omitempty"`
}

// Login verifies credentials and issues a signed JWT.
func Login(ledger store.Ledger, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		user, err := ledger.GetUserByEmail(req.Email)
		if err != nil {
			log.Printf("login: user not found: %s", req.Email)
			utils.RespondJSON(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			log.Printf("login: invalid password for %s", req.Email)
			utils.RespondJSON(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": user.ID,
			"email":   user.Email,
			"role":    user.Role,
			"iat":     time.Now().Unix(),
			"exp":     time.Now().Add(7 * 24 * time.Hour).Unix(),
		})

		tokenString, err := token.SignedString([]byte(jwtSecret))
		if err != nil {
			log.Printf("login: failed to sign token: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "failed to create token")
			return
		}

		userResponse := user.ToUserResponse()
		log.Printf("login successful: %s (%s)", user.Email, user.Role)

		utils.RespondJSON(w, http.StatusOK, LoginResponse{
			OK:    true,
			Token: tokenString,
			User:  &userResponse,
		})
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

// Register creates a user account. Restricted to admins by routing.
func Register(ledger store.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if req.Email == "" || req.Password == "" || req.Name == "" {
			utils.RespondError(w, http.StatusBadRequest, "email, password and name are required")
			return
		}
		switch req.Role {
		case models.RoleDriver, models.RoleStoreStaff, models.RoleAdmin:
		default:
			utils.RespondError(w, http.StatusBadRequest, "invalid role")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to hash password")
			return
		}

		user := &models.User{
			ID:       uuid.New().String(),
			Email:    req.Email,
			Password: string(hash),
			Name:     req.Name,
			Phone:    req.Phone,
			Role:     req.Role,
			IsActive: true,
		}
		if err := ledger.CreateUser(user); err != nil {
			respondErr(w, err)
			return
		}

		utils.RespondJSON(w, http.StatusCreated, user.ToUserResponse())
	}
}

type FCMTokenRequest struct {
	Token string `json:"token"`
}

// UpdateFCMToken stores the caller's device token for push notifications.
func UpdateFCMToken(ledger store.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req FCMTokenRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Token == "" {
			utils.RespondError(w, http.StatusBadRequest, "token is required")
			return
		}

		if err := ledger.SetUserFCMToken(user.UserID, req.Token); err != nil {
			respondErr(w, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
