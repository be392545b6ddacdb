package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TrashItem is a view row for trash listings; it is not stored itself.
type TrashItem struct {
	ItemID      primitive.ObjectID `json:"item_id"`
	ItemType    ResourceType       `json:"item_type"`
	Name        string             `json:"name"`
	OwnerID     primitive.ObjectID `json:"owner_id"`
	Size        int64              `json:"size"`
	TrashedAt   time.Time          `json:"trashed_at"`
	AutoPurgeAt time.Time          `json:"auto_purge_at"`
}
