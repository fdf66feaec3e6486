package models

// UserRole represents the roles the identity provider can assert.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleStudent    UserRole = "STUDENT"
)

// Principal is the acting user supplied by the identity collaborator on every call.
type Principal struct {
	UserID int64    `json:"user_id"`
	Role   UserRole `json:"role"`
}

// Is reports whether the principal has the given role.
func (p Principal) Is(role UserRole) bool {
	return p.Role == role
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
