// Package domain contains core concepts of the collaboration hub.
// This file defines participant identities as resolved by the auth collaborator.
// No runtime, network, or storage logic should be added here.
package domain

// Identity is the stable identity a credential resolves to.
type Identity struct {
	UserID      string `json:"userId" validate:"required"`
	Username    string `json:"username" validate:"required"`
	DisplayName string `json:"displayName,omitempty"`
}

// Name returns the display name when present, the username otherwise.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}
