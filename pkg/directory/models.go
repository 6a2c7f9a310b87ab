// Package directory aggregates stored member credentials with live Discord
// data into directory rows.
package directory

// RoleInfo is the display information of a member's highest guild role.
type RoleInfo struct {
	// Name is the role's display name.
	Name string `json:"name"`

	// Color is the role color as a six-digit hex string.
	Color string `json:"color"`
}

// Row is one member's entry in the aggregated directory. Rows are derived
// on every query and never persisted.
type Row struct {
	// MemberID is the member's stable Discord user ID.
	MemberID string `json:"member_id"`

	// DisplayName is the member's override name, if set.
	DisplayName *string `json:"display_name,omitempty"`

	// Twitter lists the member's linked Twitter account IDs.
	Twitter []string `json:"twitter"`

	// GitHub lists the member's linked GitHub account IDs.
	GitHub []string `json:"github"`

	// Role is the member's highest guild role, if any could be resolved.
	Role *RoleInfo `json:"role,omitempty"`
}
