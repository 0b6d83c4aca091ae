package models

// SignInRequest represents the JSON body for sign-in
// swagger:model SignInRequest
type SignInRequest struct {
	// Username
	// required: true
	// example: john_doe
	Username string `json:"username" validate:"required"`

	// Password
	// required: true
	// example: secret123
	Password string `json:"password" validate:"required"`
}

// SignInResponse is returned by the sign-in endpoint for every outcome.
// swagger:model SignInResponse
type SignInResponse struct {
	// Result code: 0 success, 1 invalid credentials, 3 missing field, 4 persistence failure
	// example: 0
	Code Code `json:"code"`

	// Signed-in user, present only on success
	User *User `json:"user,omitempty"`
}
