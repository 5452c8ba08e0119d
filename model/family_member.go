package model

// FamilyMember is a record owned by the external identity system; the server
// only ever reads it during parent elevation.
type FamilyMember struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	PinHash string `json:"pinHash,omitempty"`
}

const (
	RoleParent = "parent"
	RoleKid    = "kid"
)
