package domain

import (
	"fmt"
	"time"
)

// User is a registered account as the hub sees it: identity, display
// fields and a team reference. The hub authenticates and reads users,
// it never creates or mutates them.
type User struct {
	ID        string    `json:"id"` // UUID v7, minted at sign-up
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	TeamID    *int64    `json:"team_id"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName is the human-readable label stamped into media grants.
func (u *User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return fmt.Sprintf("%s %s", u.FirstName, u.LastName)
}

// Teammate is a User annotated with live presence for the teammates
// listing. IsActive reflects the presence registry at read time.
type Teammate struct {
	User
	IsActive bool `json:"is_active"`
}

// Team groups users and names their shared watercooler room.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WatercoolerRoom is the SFU room every team member may join at any
// time.
func WatercoolerRoom(teamID int64) string {
	return fmt.Sprintf("team-%d-watercooler", teamID)
}
