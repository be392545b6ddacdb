package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Folder struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name      string               `bson:"name" json:"name"`
	OwnerID   primitive.ObjectID   `bson:"owner_id" json:"owner_id"`
	ParentID  *primitive.ObjectID  `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Ancestors []primitive.ObjectID `bson:"ancestors" json:"ancestors"` // ordered root -> parent
	IsTrashed bool                 `bson:"is_trashed" json:"is_trashed"`
	TrashedAt *time.Time           `bson:"trashed_at,omitempty" json:"trashed_at,omitempty"`
	IsStarred bool                 `bson:"is_starred" json:"is_starred"`
	LinkShare *LinkSharePolicy     `bson:"link_share,omitempty" json:"link_share,omitempty"`
	CreatedAt time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at" json:"updated_at"`
}

// PermissionChain is the folder itself followed by its ancestors, nearest
// last. Grants and link policies on any member apply to the folder.
func (f *Folder) PermissionChain() []primitive.ObjectID {
	chain := make([]primitive.ObjectID, 0, len(f.Ancestors)+1)
	chain = append(chain, f.ID)
	chain = append(chain, f.Ancestors...)
	return chain
}
