package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
)

// Store is the persistence boundary for the resource tree, grants and quota
// accounting. The production implementation is backed by MongoDB; a memory
// implementation backs the test suites.
//
// Reads and writes issued inside the callback of InTransaction observe one
// logical snapshot and commit atomically. Implementations must be safe for
// concurrent use.
type Store interface {
	// Folders
	FolderByID(ctx context.Context, id primitive.ObjectID) (*models.Folder, error)
	FoldersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Folder, error)
	InsertFolder(ctx context.Context, folder *models.Folder) error
	// FolderDescendants returns every folder whose ancestors list contains
	// id, i.e. the strict descendants of the folder.
	FolderDescendants(ctx context.Context, id primitive.ObjectID) ([]models.Folder, error)
	UpdateFolderParent(ctx context.Context, id primitive.ObjectID, parentID *primitive.ObjectID, ancestors []primitive.ObjectID) error
	UpdateFolderAncestors(ctx context.Context, ancestors map[primitive.ObjectID][]primitive.ObjectID) error
	SetFoldersTrashed(ctx context.Context, ids []primitive.ObjectID, trashed bool, at *time.Time) error
	SetFolderStarred(ctx context.Context, id primitive.ObjectID, starred bool) error
	DeleteFolders(ctx context.Context, ids []primitive.ObjectID) error
	ListTrashedFolders(ctx context.Context, ownerID primitive.ObjectID) ([]models.Folder, error)
	// ListTrashedFoldersBefore returns, across all owners, folders trashed
	// at or before the cutoff. Used by the auto-purge job.
	ListTrashedFoldersBefore(ctx context.Context, cutoff time.Time) ([]models.Folder, error)

	// Files
	FileByID(ctx context.Context, id primitive.ObjectID) (*models.File, error)
	InsertFile(ctx context.Context, file *models.File) error
	// FilesInFolders returns every file whose folder pointer is one of the
	// given folders, trashed files included.
	FilesInFolders(ctx context.Context, folderIDs []primitive.ObjectID) ([]models.File, error)
	UpdateFileFolder(ctx context.Context, id primitive.ObjectID, folderID *primitive.ObjectID) error
	SetFilesTrashed(ctx context.Context, ids []primitive.ObjectID, trashed bool, at *time.Time) error
	SetFileStarred(ctx context.Context, id primitive.ObjectID, starred bool) error
	DeleteFiles(ctx context.Context, ids []primitive.ObjectID) error
	ListTrashedFiles(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error)
	ListTrashedFilesBefore(ctx context.Context, cutoff time.Time) ([]models.File, error)
	// CountFilesBySHA1 counts live file records referencing a content hash.
	CountFilesBySHA1(ctx context.Context, hash string) (int64, error)

	// Grants and link policies
	UpsertGrant(ctx context.Context, grant *models.AccessGrant) error
	DeleteGrant(ctx context.Context, resourceID, granteeID primitive.ObjectID) error
	DeleteGrantsOnResources(ctx context.Context, resourceIDs []primitive.ObjectID) error
	GrantsOnResource(ctx context.Context, resourceID primitive.ObjectID) ([]models.AccessGrant, error)
	// GrantsFor returns the grantee's grants on any of the given resources.
	GrantsFor(ctx context.Context, granteeID primitive.ObjectID, resourceIDs []primitive.ObjectID) ([]models.AccessGrant, error)
	SetLinkShare(ctx context.Context, resourceType models.ResourceType, id primitive.ObjectID, policy *models.LinkSharePolicy) error
	// IncrementLinkAccess bumps the access count if the resource's policy
	// still carries the given token; a rotated token does not match.
	IncrementLinkAccess(ctx context.Context, resourceType models.ResourceType, id primitive.ObjectID, token string) error

	// Users
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	AdjustStorageUsed(ctx context.Context, ownerID primitive.ObjectID, delta int64) error

	// InTransaction runs fn atomically. An error from fn rolls back every
	// write and is returned unchanged; a commit-level failure rolls back
	// and surfaces wrapped as models.ErrTransactionFailed.
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
