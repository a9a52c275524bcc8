package models

import "time"

// Role is the access role of a profile
type Role string

const (
	RoleClient Role = "client"
	RoleBroker Role = "broker"
	RoleAdmin  Role = "admin"
)

// Profile is a person known to the system (client, broker or admin)
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateProfileRequest is used by the auth service sync and test fixtures
type CreateProfileRequest struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Role     Role   `json:"role" validate:"required,oneof=client broker admin"`
}

// UpdateRoleRequest changes a profile's role
type UpdateRoleRequest struct {
	Role Role `json:"role" validate:"required,oneof=client broker admin"`
}
