// Package discord provides a client for the Discord HTTP API.
package discord

import "fmt"

// User represents a Discord user profile.
type User struct {
	// ID is the user's stable snowflake ID.
	ID string `json:"id"`

	// Username is the user's account name.
	Username string `json:"username"`

	// Discriminator is the legacy four-digit tag.
	Discriminator string `json:"discriminator"`

	// Avatar is the user's avatar hash, if set.
	Avatar *string `json:"avatar"`
}

// Connection represents an external account linked to a Discord user.
type Connection struct {
	// ID is the external account's identifier on the connected service.
	ID string `json:"id"`

	// Name is the external account's display name.
	Name string `json:"name"`

	// Kind is the connected service ("twitter", "github", ...).
	Kind string `json:"type"`
}

// Role represents a guild role.
type Role struct {
	// ID is the role's snowflake ID.
	ID string `json:"id"`

	// Name is the role's display name.
	Name string `json:"name"`

	// Color is the role color as an RGB integer. Zero means no color.
	Color int `json:"color"`

	// Position is the role's rank in the guild hierarchy. Higher wins.
	Position int `json:"position"`
}

// HexColor returns the role color as a six-digit uppercase hex string.
func (r *Role) HexColor() string {
	return fmt.Sprintf("%06X", r.Color)
}

// Member represents a user's membership within a guild.
type Member struct {
	// Nick is the member's guild-specific nickname, if set.
	Nick *string `json:"nick"`

	// Roles is the list of role IDs assigned to the member.
	Roles []string `json:"roles"`
}
