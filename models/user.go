package models

// Roles a citizen can sign up with.
const (
	RoleAmbulance = "ambulance"
	RoleSchoolBus = "school_bus"
	RoleCasual    = "casual"
)

// ValidRole reports whether role is one of the known sign-up roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAmbulance, RoleSchoolBus, RoleCasual:
		return true
	}
	return false
}

// Identity is the authenticated submitter.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
}

// Submitter returns the identifier stored on reports: the email when known,
// the user id otherwise.
func (i Identity) Submitter() string {
	if i.Email != "" {
		return i.Email
	}
	return i.UserID
}

// CreateUserRequest represents the request to create a new user
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required,oneof=ambulance school_bus casual"`
}

// LoginRequest represents the authentication request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse represents the authentication response
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresIn int       `json:"expires_in"`
	User      *Identity `json:"user,omitempty"`
}

// MessageResponse represents a simple message response
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
