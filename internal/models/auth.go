package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued access token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	FullName     string   `json:"full_name"`
	Role         UserRole `json:"role"`
	DepartmentID *int64   `json:"department_id,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID       string   `json:"user_id"`
	Role         UserRole `json:"role"`
	Email        string   `json:"email"`
	FullName     string   `json:"full_name"`
	DepartmentID *int64   `json:"department_id,omitempty"`
	jwt.RegisteredClaims
}

// CanManageDepartment reports whether the holder may generate or review timetables of a department.
// Heads of department are limited to their own department.
func (c *JWTClaims) CanManageDepartment(departmentID int64) bool {
	if c == nil {
		return false
	}
	switch c.Role {
	case RoleSuperAdmin, RoleTimetableAdmin:
		return true
	case RoleHOD:
		return c.DepartmentID != nil && *c.DepartmentID == departmentID
	default:
		return false
	}
}
