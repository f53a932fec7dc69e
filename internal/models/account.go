package models

// Tier is the quota class of an account.
type Tier string

const (
	TierMetered   Tier = "metered"
	TierUnmetered Tier = "unmetered"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierMetered || t == TierUnmetered
}

// Account is the authenticated caller as supplied by the auth collaborator.
type Account struct {
	UserID string
	Tier   Tier
}
