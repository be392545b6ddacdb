package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AccessGrant gives a user a role on a single resource. At most one grant
// exists per (resource, grantee); re-sharing updates it in place.
type AccessGrant struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ResourceID   primitive.ObjectID `bson:"resource_id" json:"resource_id"`
	ResourceType ResourceType       `bson:"resource_type" json:"resource_type"`
	GranteeID    primitive.ObjectID `bson:"grantee_id" json:"grantee_id"`
	GranterID    primitive.ObjectID `bson:"granter_id" json:"granter_id"`
	Role         Role               `bson:"role" json:"role"`
	ExpiresAt    *time.Time         `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	GrantedAt    time.Time          `bson:"granted_at" json:"granted_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

func (g *AccessGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}
