package models

import "time"

// LinkShareMode is the variant tag of a link share policy. The password,
// expiry and access-count fields are only meaningful in restricted mode;
// open mode is "anyone with the link", no password.
type LinkShareMode string

const (
	LinkDisabled   LinkShareMode = "disabled"
	LinkOpen       LinkShareMode = "open"
	LinkRestricted LinkShareMode = "restricted"
)

// LinkSharePolicy is a per-resource, token-addressable access policy
// independent of user identity. A token belongs to the resource that issued
// it; rotating the token invalidates the old one immediately.
type LinkSharePolicy struct {
	Mode           LinkShareMode `bson:"mode" json:"mode"`
	Role           Role          `bson:"role" json:"role"`
	PasswordHash   []byte        `bson:"password_hash,omitempty" json:"-"`
	ExpiresAt      *time.Time    `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	MaxAccessCount *int64        `bson:"max_access_count,omitempty" json:"max_access_count,omitempty"`
	AccessCount    int64         `bson:"access_count" json:"access_count"`
	Token          string        `bson:"token" json:"token"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
}

func (p *LinkSharePolicy) Enabled() bool {
	return p != nil && (p.Mode == LinkOpen || p.Mode == LinkRestricted)
}

func (p *LinkSharePolicy) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

func (p *LinkSharePolicy) Exhausted() bool {
	return p.MaxAccessCount != nil && p.AccessCount >= *p.MaxAccessCount
}

// Usable reports whether the policy can authorize anything at the given
// instant, regardless of role or token.
func (p *LinkSharePolicy) Usable(now time.Time) bool {
	return p.Enabled() && !p.Expired(now) && !p.Exhausted()
}

// AllowsAnonymous reports whether the policy authorizes a caller that
// presents neither a token nor a password: an open "anyone" link.
func (p *LinkSharePolicy) AllowsAnonymous(now time.Time) bool {
	return p.Usable(now) && p.Mode == LinkOpen
}
