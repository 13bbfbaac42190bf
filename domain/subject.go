package domain

// Subject is the identity resolved by the Identity Verifier.
// ID is the stable account id, Name the display name used as message author.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"username"`
}
