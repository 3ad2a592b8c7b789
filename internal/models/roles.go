package models

// Roles carried in identity-provider tokens.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleViewer  = "viewer"
)

// ValidRoles defines the available roles in the system
var ValidRoles = []string{
	RoleAdmin,
	RoleManager,
	RoleViewer,
}

// Role groups used by the service layer.
var (
	WriterRoles = []string{RoleAdmin, RoleManager}
	AdminRoles  = []string{RoleAdmin}
)

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	for _, validRole := range ValidRoles {
		if role == validRole {
			return true
		}
	}
	return false
}

// ValidateRoles checks if all provided roles are valid
func ValidateRoles(roles []string) bool {
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return len(roles) > 0
}
