package services

import "time"

// SetPublishTimeout overrides the event write bound in tests.
func (s *AuthService) SetPublishTimeout(d time.Duration) {
	s.publishTimeout = d
}
