package models

// User roles. Drivers mutate only their own shifts and deliveries;
// store staff and admins assign and read broadly.
const (
	RoleDriver     = "driver"
	RoleStoreStaff = "store_staff"
	RoleAdmin      = "admin"
)

type User struct {
	ID        string  `json:"id" db:"id"`
	Email     string  `json:"email" db:"email"`
	Password  string  `json:"-" db:"password"` // bcrypt hash, never returned in JSON
	Name      string  `json:"name" db:"name"`
	Phone     string  `json:"phone" db:"phone"`
	Role      string  `json:"role" db:"role"`
	FCMToken  *string `json:"-" db:"fcm_token"`
	IsActive  bool    `json:"is_active" db:"is_active"`
	CreatedAt int64   `json:"created_at" db:"created_at"`
	UpdatedAt int64   `json:"updated_at" db:"updated_at"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

func (u *User) ToUserResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// ContactInfo is the reduced driver view exposed to staff endpoints.
type ContactInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (u *User) ToContactInfo() ContactInfo {
	return ContactInfo{ID: u.ID, Name: u.Name, Phone: u.Phone}
}
