package models

// RegisterRequest represents the JSON body for user registration
// swagger:model RegisterRequest
type RegisterRequest struct {
	// Username
	// required: true
	// example: john_doe
	Username string `json:"username" validate:"required"`

	// First name
	// required: true
	// example: John
	First string `json:"first" validate:"required"`

	// Last name
	// required: true
	// example: Doe
	Last string `json:"last" validate:"required"`

	// Password
	// required: true
	// example: secret123
	Password string `json:"password" validate:"required"`
}

// RegisterResponse is returned by the registration endpoint for every outcome.
// swagger:model RegisterResponse
type RegisterResponse struct {
	// Result code: 0 success, 2 username taken, 3 missing field, 4 persistence failure
	// example: 0
	Code Code `json:"code"`

	// Registered user, present only on success
	User *User `json:"user,omitempty"`
}
