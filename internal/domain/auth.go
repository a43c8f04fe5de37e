package domain

// Actor is the authenticated identity performing a request.
type Actor struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
