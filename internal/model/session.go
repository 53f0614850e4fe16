package model

// User is the account record kept next to the auth token.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the persisted login state: a bearer token and its user.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Roles issued by the mock login.
const (
	RoleAdmin        = "admin"
	RoleOrganization = "organization"
	RoleStudent      = "student"
)
