package models

import "time"

// User is the slice of the platform's user record this core needs: enough
// to validate recipients and track reachability. Profile data (company,
// deals, documents) lives elsewhere and never passes through here.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
