package models

import (
	"time"
)

// Role represents user roles in the marketplace
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDealer Role = "dealer"
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

// User represents a marketplace account
type User struct {
	ID           string     `bson:"_id" json:"id"`
	Username     string     `bson:"username" json:"username"`
	Email        string     `bson:"email" json:"email"`
	PasswordHash string     `bson:"password_hash" json:"-"`
	Role         Role       `bson:"role" json:"role"`
	FirstName    string     `bson:"first_name" json:"first_name"`
	LastName     string     `bson:"last_name" json:"last_name"`
	Phone        string     `bson:"phone,omitempty" json:"phone,omitempty"`
	IsActive     bool       `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Role      Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleDealer, RoleSeller, RoleBuyer:
		return true
	default:
		return false
	}
}

// CanSelfRegister reports whether the role may be chosen at sign-up.
func CanSelfRegister(role Role) bool {
	return IsValidRole(role) && role != RoleAdmin
}

// IsSellerRole reports whether the role may list vehicles.
func IsSellerRole(role Role) bool {
	return role == RoleDealer || role == RoleSeller
}

// Permission actions checked by the middleware.
const (
	ActionManageUsers     = "manage_users"
	ActionManageRules     = "manage_rules"
	ActionViewCommissions = "view_commissions"
	ActionListVehicle     = "list_vehicle"
	ActionMakeOffer       = "make_offer"
	ActionSendMessage     = "send_message"
)

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	return RoleHasPermission(u.Role, action)
}

// RoleHasPermission checks the permission table for a role.
func RoleHasPermission(role Role, action string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleDealer, RoleSeller:
		return action == ActionListVehicle || action == ActionMakeOffer || action == ActionSendMessage
	case RoleBuyer:
		return action == ActionMakeOffer || action == ActionSendMessage
	default:
		return false
	}
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	if u.FirstName == "" {
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}
