package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/store"
)

// FolderService maintains the resource tree and its structural invariant:
// for every folder, ancestors is exactly the materialized root-to-parent
// path, and no folder ever appears in its own ancestor list.
type FolderService struct {
	store             store.Store
	permissionService *PermissionService
}

func NewFolderService(st store.Store, permissionService *PermissionService) *FolderService {
	return &FolderService{store: st, permissionService: permissionService}
}

// ComputeAncestors derives the ancestors list for a resource created under
// parentID: the parent's own ancestors plus the parent id. Root-level
// resources get an empty list.
func (s *FolderService) ComputeAncestors(ctx context.Context, parentID *primitive.ObjectID) ([]primitive.ObjectID, error) {
	if parentID == nil {
		return []primitive.ObjectID{}, nil
	}
	parent, err := s.store.FolderByID(ctx, *parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsTrashed {
		return nil, fmt.Errorf("parent folder is trashed: %w", models.ErrConflict)
	}
	ancestors := make([]primitive.ObjectID, 0, len(parent.Ancestors)+1)
	ancestors = append(ancestors, parent.Ancestors...)
	ancestors = append(ancestors, parent.ID)
	return ancestors, nil
}

// DescendantIDs is the folder itself plus every folder whose ancestors list
// contains it.
func (s *FolderService) DescendantIDs(ctx context.Context, folderID primitive.ObjectID) ([]primitive.ObjectID, error) {
	descendants, err := s.store.FolderDescendants(ctx, folderID)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(descendants)+1)
	ids = append(ids, folderID)
	for _, folder := range descendants {
		ids = append(ids, folder.ID)
	}
	return ids, nil
}

// CreateFolder creates a folder under parentID (nil for root level). The
// actor needs editor access on the parent.
func (s *FolderService) CreateFolder(ctx context.Context, actorID primitive.ObjectID, name string, parentID *primitive.ObjectID) (*models.Folder, error) {
	if name == "" {
		return nil, fmt.Errorf("folder name is required: %w", models.ErrConflict)
	}
	if parentID != nil {
		ok, err := s.permissionService.Authorize(ctx, AccessRequest{ActorID: &actorID}, *parentID, models.ResourceFolder, models.RoleEditor)
		if err != nil {
			return nil, fmt.Errorf("permission check failed: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("insufficient permissions on parent: %w", models.ErrForbidden)
		}
	}

	ancestors, err := s.ComputeAncestors(ctx, parentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	folder := &models.Folder{
		ID:        primitive.NewObjectID(),
		Name:      name,
		OwnerID:   actorID,
		ParentID:  parentID,
		Ancestors: ancestors,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertFolder(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// CreateFile records a file's metadata under folderID and charges its size
// against the owner's storage usage in the same transaction. Object bytes
// are uploaded elsewhere; sha1 is the content key they live under.
func (s *FolderService) CreateFile(ctx context.Context, actorID primitive.ObjectID, name string, size int64, mimeType, sha1 string, folderID *primitive.ObjectID) (*models.File, error) {
	if name == "" {
		return nil, fmt.Errorf("file name is required: %w", models.ErrConflict)
	}
	if folderID != nil {
		ok, err := s.permissionService.Authorize(ctx, AccessRequest{ActorID: &actorID}, *folderID, models.ResourceFolder, models.RoleEditor)
		if err != nil {
			return nil, fmt.Errorf("permission check failed: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("insufficient permissions on folder: %w", models.ErrForbidden)
		}
		folder, err := s.store.FolderByID(ctx, *folderID)
		if err != nil {
			return nil, err
		}
		if folder.IsTrashed {
			return nil, fmt.Errorf("folder is trashed: %w", models.ErrConflict)
		}
	}

	user, err := s.store.UserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if user.MaxStorage > 0 && user.StorageUsed+size > user.MaxStorage {
		return nil, fmt.Errorf("cannot store %d more bytes: %w", size, models.ErrQuotaExceeded)
	}

	now := time.Now()
	file := &models.File{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Size:      size,
		MimeType:  mimeType,
		SHA1Hash:  sha1,
		FolderID:  folderID,
		OwnerID:   actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.InTransaction(ctx, func(tc context.Context) error {
		if err := s.store.InsertFile(tc, file); err != nil {
			return err
		}
		return s.store.AdjustStorageUsed(tc, actorID, size)
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// FileDownloadInfo returns the file a caller may fetch bytes for. Access
// follows the same resolution as any read, so a link visitor can present a
// token through req. A denied or trashed file reads as missing.
func (s *FolderService) FileDownloadInfo(ctx context.Context, req AccessRequest, fileID primitive.ObjectID) (*models.File, error) {
	ok, err := s.permissionService.Authorize(ctx, req, fileID, models.ResourceFile, models.RoleViewer)
	if err != nil {
		return nil, fmt.Errorf("permission check failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("file not accessible: %w", models.ErrNotFound)
	}

	file, err := s.store.FileByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.IsTrashed {
		return nil, fmt.Errorf("file is trashed: %w", models.ErrNotFound)
	}
	return file, nil
}

// validateMove rejects a folder move that would create a cycle. Because
// ancestor paths are materialized this is an O(depth) membership test on the
// destination, not a subtree walk. A nil destination is the root level and
// can never form a cycle.
func validateMove(folder *models.Folder, dest *models.Folder) error {
	if dest == nil {
		return nil
	}
	if dest.ID == folder.ID {
		return fmt.Errorf("cannot move a folder into itself: %w", models.ErrConflict)
	}
	for _, ancestor := range dest.Ancestors {
		if ancestor == folder.ID {
			return fmt.Errorf("destination is inside the moved folder: %w", models.ErrConflict)
		}
	}
	return nil
}

// rewriteAncestors replaces everything up to and including movedID in an
// ancestors list with newPrefix, keeping the descendant's relative suffix
// unchanged. newPrefix already ends with movedID.
func rewriteAncestors(ancestors []primitive.ObjectID, movedID primitive.ObjectID, newPrefix []primitive.ObjectID) []primitive.ObjectID {
	for i, id := range ancestors {
		if id == movedID {
			rewritten := make([]primitive.ObjectID, 0, len(newPrefix)+len(ancestors)-i-1)
			rewritten = append(rewritten, newPrefix...)
			rewritten = append(rewritten, ancestors[i+1:]...)
			return rewritten
		}
	}
	return ancestors
}

// moveFolder relocates folder under dest (nil for root level) and rewrites
// the materialized path of every strict descendant in the same mutation, so
// no reader observes a half-updated tree. Callers run it inside a
// transaction and validate the move first.
func (s *FolderService) moveFolder(ctx context.Context, folder *models.Folder, dest *models.Folder) error {
	var newAncestors []primitive.ObjectID
	var newParentID *primitive.ObjectID
	if dest != nil {
		newAncestors = make([]primitive.ObjectID, 0, len(dest.Ancestors)+1)
		newAncestors = append(newAncestors, dest.Ancestors...)
		newAncestors = append(newAncestors, dest.ID)
		newParentID = &dest.ID
	} else {
		newAncestors = []primitive.ObjectID{}
	}

	descendants, err := s.store.FolderDescendants(ctx, folder.ID)
	if err != nil {
		return err
	}

	newPrefix := make([]primitive.ObjectID, 0, len(newAncestors)+1)
	newPrefix = append(newPrefix, newAncestors...)
	newPrefix = append(newPrefix, folder.ID)

	updates := make(map[primitive.ObjectID][]primitive.ObjectID, len(descendants))
	for _, descendant := range descendants {
		updates[descendant.ID] = rewriteAncestors(descendant.Ancestors, folder.ID, newPrefix)
	}

	if err := s.store.UpdateFolderParent(ctx, folder.ID, newParentID, newAncestors); err != nil {
		return err
	}
	return s.store.UpdateFolderAncestors(ctx, updates)
}
