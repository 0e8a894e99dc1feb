package domain

// ProviderGoogle is the only supported identity provider.
const ProviderGoogle = "google"

// Identity is an authenticated principal as reported by the identity provider.
type Identity struct {
	// ID is the stable subject identifier. Bookmark.Owner references it.
	ID string `json:"id"`

	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// IsZero reports whether the identity is absent.
func (i Identity) IsZero() bool { return i.ID == "" }
