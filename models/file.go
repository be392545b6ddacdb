package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type File struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name      string              `bson:"name" json:"name"`
	Size      int64               `bson:"size" json:"size"`
	MimeType  string              `bson:"mime_type" json:"mime_type"`
	FolderID  *primitive.ObjectID `bson:"folder_id,omitempty" json:"folder_id,omitempty"`
	OwnerID   primitive.ObjectID  `bson:"owner_id" json:"owner_id"`
	SHA1Hash  string              `bson:"sha1_hash" json:"sha1_hash"` // object-store key; shared by deduplicated files
	IsTrashed bool                `bson:"is_trashed" json:"is_trashed"`
	TrashedAt *time.Time          `bson:"trashed_at,omitempty" json:"trashed_at,omitempty"`
	IsStarred bool                `bson:"is_starred" json:"is_starred"`
	LinkShare *LinkSharePolicy    `bson:"link_share,omitempty" json:"link_share,omitempty"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time           `bson:"updated_at" json:"updated_at"`
}
