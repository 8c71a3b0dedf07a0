package domain

import "time"

// Provider identifies the upstream social-identity provider.
type Provider string

const (
	ProviderGoogle Provider = "GOOGLE"
	ProviderKakao  Provider = "KAKAO"
	ProviderApple  Provider = "APPLE"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderKakao, ProviderApple:
		return true
	}
	return false
}

// IdentityAssertion is the externally verified identity claim consumed by the
// exchange. It is produced once per login and never mutated.
type IdentityAssertion struct {
	Provider Provider
	SocialID string
	Email    string
	Name     string
}

// User is a registered account. Uniqueness is enforced on
// (provider, social_id); repeated exchanges for the same external identity
// always resolve to the same row.
type User struct {
	ID        int64
	Provider  Provider
	SocialID  string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Response returns a consistent JSON-friendly map of user data.
func (u *User) Response() map[string]interface{} {
	return map[string]interface{}{
		"id":       u.ID,
		"provider": string(u.Provider),
		"email":    u.Email,
		"name":     u.Name,
	}
}
