package models

// Roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Identity is the verified caller of a request. A nil *Identity means an
// anonymous caller.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// DisplayName returns the best available name for attribution.
func (i *Identity) DisplayName() string {
	switch {
	case i == nil:
		return ""
	case i.Name != "":
		return i.Name
	case i.Email != "":
		return i.Email
	}
	return "Devotee"
}
