package models

// DefaultAvatarURL is the picture assigned to every new profile.
const DefaultAvatarURL = "https://i.imgur.com/FSgbIi4.png"

// Credential represents a row of the credentials table.
type Credential struct {
	ID           int64  `json:"id" db:"id"`               // Primary key, shared with the profile
	Username     string `json:"username" db:"username"`   // Unique login name
	PasswordHash string `json:"-" db:"password_hash"`     // bcrypt digest, never serialized
	LastSeen     int64  `json:"last_seen" db:"last_seen"` // Epoch milliseconds of the last sign-in
}

// Profile represents a row of the profiles table.
type Profile struct {
	ID        int64  `json:"id" db:"id"`                 // Same value as the owning credential
	FirstName string `json:"first_name" db:"first_name"` // Display first name
	LastName  string `json:"last_name" db:"last_name"`   // Display last name
	AvatarURL string `json:"avatar_url" db:"avatar_url"` // Picture URL
}

// User is the public view of a credential and its profile.
// swagger:model User
type User struct {
	// First name
	// example: John
	First string `json:"first"`

	// Last name
	// example: Doe
	Last string `json:"last"`

	// Account identifier
	// example: 42
	ID int64 `json:"id"`

	// Avatar URL
	// example: https://i.imgur.com/FSgbIi4.png
	Picture string `json:"picture"`
}

// NewUser composes the public view from a profile.
func NewUser(p *Profile) *User {
	return &User{
		First:   p.FirstName,
		Last:    p.LastName,
		ID:      p.ID,
		Picture: p.AvatarURL,
	}
}
