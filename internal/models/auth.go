package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles supplied by the external permission service.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleOwner  UserRole = "OWNER"
	RoleViewer UserRole = "VIEWER"
)

// JWTClaims represents the JWT payload for access tokens issued by the
// external auth service. This service only validates and reads them.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
