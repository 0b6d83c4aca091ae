package models

// Account event types.
const (
	EventRegistered = "registered"
	EventSignedIn   = "signed_in"
)

// AccountEvent describes a successful registration or sign-in published for downstream consumers.
type AccountEvent struct {
	EventID   string `json:"event_id"`  // EventID is a unique identifier for the event.
	Type      string `json:"type"`      // Type is either "registered" or "signed_in".
	UserID    int64  `json:"user_id"`   // UserID is the account the event belongs to.
	Username  string `json:"username"`  // Username is the login name of the account.
	Timestamp int64  `json:"timestamp"` // Timestamp is the epoch milliseconds when the event occurred.
}
