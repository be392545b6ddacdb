package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/store"
	"github.com/fyerfyer/fyer-drive-sub000/utils"
)

// TrashRetention is how long items stay in trash before auto-purge.
const TrashRetention = 30 * 24 * time.Hour

// ObjectStore is the byte-storage collaborator. It is invoked only after
// the transaction that removed the last referencing file record has
// committed, never speculatively, and Delete must be idempotent.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// BatchService executes one logical mutation across a caller-supplied mix
// of files and folders as a single atomic unit. Per-item logical failures
// (not found, foreign owner, already in target state, cyclic move) are
// reported per item without aborting the transaction; only an
// infrastructure failure aborts and rolls back the whole batch.
//
// Batch callers operate within their own resources: a foreign item is
// rejected per item, not for the whole batch.
type BatchService struct {
	store         store.Store
	folderService *FolderService
	objects       ObjectStore
}

func NewBatchService(st store.Store, folderService *FolderService, objects ObjectStore) *BatchService {
	return &BatchService{store: st, folderService: folderService, objects: objects}
}

// BatchTrash soft-deletes the items. Trashing a folder marks its entire
// descendant subtree (folders and files) trashed as one unit.
func (s *BatchService) BatchTrash(ctx context.Context, actorID primitive.ObjectID, items []models.BatchItem) (*models.BatchResult, error) {
	var result *models.BatchResult
	now := time.Now()

	err := s.store.InTransaction(ctx, func(tc context.Context) error {
		// The callback can run more than once on transient transaction
		// errors; per-attempt state starts fresh every time.
		result = &models.BatchResult{}
		for _, item := range items {
			switch item.Type {
			case models.ResourceFolder:
				folder, reason, message, err := s.loadOwnedFolder(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" && folder.IsTrashed {
					reason, message = models.FailureAlreadyInState, "folder is already in trash"
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				folderIDs, subFiles, err := s.expandSubtree(tc, folder.ID)
				if err != nil {
					return err
				}
				if err := s.store.SetFoldersTrashed(tc, folderIDs, true, &now); err != nil {
					return err
				}
				if err := s.store.SetFilesTrashed(tc, fileIDs(subFiles), true, &now); err != nil {
					return err
				}
				result.Add(item, "", "")

			case models.ResourceFile:
				file, reason, message, err := s.loadOwnedFile(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" && file.IsTrashed {
					reason, message = models.FailureAlreadyInState, "file is already in trash"
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				if err := s.store.SetFilesTrashed(tc, []primitive.ObjectID{file.ID}, true, &now); err != nil {
					return err
				}
				result.Add(item, "", "")

			default:
				result.Add(item, models.FailureNotFound, "invalid resource type")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch trash: %w", err)
	}
	return result, nil
}

// BatchRestore takes the items out of trash, reversing exactly the unit a
// trash operation covered: the item and its whole subtree.
func (s *BatchService) BatchRestore(ctx context.Context, actorID primitive.ObjectID, items []models.BatchItem) (*models.BatchResult, error) {
	var result *models.BatchResult

	err := s.store.InTransaction(ctx, func(tc context.Context) error {
		result = &models.BatchResult{}
		for _, item := range items {
			switch item.Type {
			case models.ResourceFolder:
				folder, reason, message, err := s.loadOwnedFolder(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" && !folder.IsTrashed {
					reason, message = models.FailureAlreadyInState, "folder is not in trash"
				}
				if reason == "" && folder.ParentID != nil {
					reason, message, err = s.checkRestoreTarget(tc, *folder.ParentID)
					if err != nil {
						return err
					}
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				folderIDs, subFiles, err := s.expandSubtree(tc, folder.ID)
				if err != nil {
					return err
				}
				if err := s.store.SetFoldersTrashed(tc, folderIDs, false, nil); err != nil {
					return err
				}
				if err := s.store.SetFilesTrashed(tc, fileIDs(subFiles), false, nil); err != nil {
					return err
				}
				result.Add(item, "", "")

			case models.ResourceFile:
				file, reason, message, err := s.loadOwnedFile(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" && !file.IsTrashed {
					reason, message = models.FailureAlreadyInState, "file is not in trash"
				}
				if reason == "" && file.FolderID != nil {
					reason, message, err = s.checkRestoreTarget(tc, *file.FolderID)
					if err != nil {
						return err
					}
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				if err := s.store.SetFilesTrashed(tc, []primitive.ObjectID{file.ID}, false, nil); err != nil {
					return err
				}
				result.Add(item, "", "")

			default:
				result.Add(item, models.FailureNotFound, "invalid resource type")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch restore: %w", err)
	}
	return result, nil
}

// BatchDelete permanently removes trashed items and their subtrees,
// releasing each file's quota charge back to the user it was billed to
// within the same transaction. Object bytes are cleaned up after commit, reference-counted
// by content hash so deduplicated content survives until its last record
// is gone.
func (s *BatchService) BatchDelete(ctx context.Context, actorID primitive.ObjectID, items []models.BatchItem) (*models.BatchResult, error) {
	var result *models.BatchResult
	var removedHashes map[string]bool

	err := s.store.InTransaction(ctx, func(tc context.Context) error {
		result = &models.BatchResult{}
		removedHashes = make(map[string]bool)
		freedByOwner := make(map[primitive.ObjectID]int64)
		for _, item := range items {
			switch item.Type {
			case models.ResourceFolder:
				folder, reason, message, err := s.loadOwnedFolder(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" && !folder.IsTrashed {
					// Permanent delete only applies to trashed folders.
					reason, message = models.FailureNotFound, "folder not found in trash"
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				folderIDs, subFiles, err := s.expandSubtree(tc, folder.ID)
				if err != nil {
					return err
				}
				for _, file := range subFiles {
					freedByOwner[file.OwnerID] += file.Size
					if file.SHA1Hash != "" {
						removedHashes[file.SHA1Hash] = true
					}
				}
				subFileIDs := fileIDs(subFiles)
				if err := s.store.DeleteFiles(tc, subFileIDs); err != nil {
					return err
				}
				if err := s.store.DeleteFolders(tc, folderIDs); err != nil {
					return err
				}
				if err := s.store.DeleteGrantsOnResources(tc, append(folderIDs, subFileIDs...)); err != nil {
					return err
				}
				result.Add(item, "", "")

			case models.ResourceFile:
				file, reason, message, err := s.loadOwnedFile(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" && !file.IsTrashed {
					reason, message = models.FailureNotFound, "file not found in trash"
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				freedByOwner[file.OwnerID] += file.Size
				if file.SHA1Hash != "" {
					removedHashes[file.SHA1Hash] = true
				}
				if err := s.store.DeleteFiles(tc, []primitive.ObjectID{file.ID}); err != nil {
					return err
				}
				if err := s.store.DeleteGrantsOnResources(tc, []primitive.ObjectID{file.ID}); err != nil {
					return err
				}
				result.Add(item, "", "")

			default:
				result.Add(item, models.FailureNotFound, "invalid resource type")
			}
		}
		// Quota goes back to whoever was charged for each file: a file an
		// editor created in this folder was billed to the editor, not the
		// batch caller.
		for ownerID, freed := range freedByOwner {
			if err := s.store.AdjustStorageUsed(tc, ownerID, -freed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch delete: %w", err)
	}

	if s.objects != nil && len(removedHashes) > 0 {
		go s.cleanupObjects(removedHashes)
	}
	return result, nil
}

// BatchMove reparents the items under destinationID (nil for root level).
// Folder items are validated independently against cycles and their
// descendants' materialized paths rewritten; file items just get their
// folder pointer reassigned.
func (s *BatchService) BatchMove(ctx context.Context, actorID primitive.ObjectID, items []models.BatchItem, destinationID *primitive.ObjectID) (*models.BatchResult, error) {
	var result *models.BatchResult

	err := s.store.InTransaction(ctx, func(tc context.Context) error {
		result = &models.BatchResult{}
		var dest *models.Folder
		if destinationID != nil {
			var err error
			dest, err = s.store.FolderByID(tc, *destinationID)
			if err != nil {
				return err
			}
			if dest.OwnerID != actorID {
				return fmt.Errorf("destination folder: %w", models.ErrForbidden)
			}
			if dest.IsTrashed {
				return fmt.Errorf("destination folder is trashed: %w", models.ErrConflict)
			}
		}

		for _, item := range items {
			switch item.Type {
			case models.ResourceFolder:
				folder, reason, message, err := s.loadOwnedFolder(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" {
					if err := validateMove(folder, dest); err != nil {
						reason, message = models.FailureCyclicMove, err.Error()
					} else if sameParent(folder.ParentID, destinationID) {
						reason, message = models.FailureAlreadyInState, "folder is already in the destination"
					}
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				if err := s.folderService.moveFolder(tc, folder, dest); err != nil {
					return err
				}
				result.Add(item, "", "")

			case models.ResourceFile:
				file, reason, message, err := s.loadOwnedFile(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" && sameParent(file.FolderID, destinationID) {
					reason, message = models.FailureAlreadyInState, "file is already in the destination"
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				if err := s.store.UpdateFileFolder(tc, file.ID, destinationID); err != nil {
					return err
				}
				result.Add(item, "", "")

			default:
				result.Add(item, models.FailureNotFound, "invalid resource type")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch move: %w", err)
	}
	return result, nil
}

// BatchStar sets or clears the star flag on each item.
func (s *BatchService) BatchStar(ctx context.Context, actorID primitive.ObjectID, items []models.BatchItem, starred bool) (*models.BatchResult, error) {
	var result *models.BatchResult

	err := s.store.InTransaction(ctx, func(tc context.Context) error {
		result = &models.BatchResult{}
		for _, item := range items {
			switch item.Type {
			case models.ResourceFolder:
				folder, reason, message, err := s.loadOwnedFolder(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" && folder.IsStarred == starred {
					reason, message = models.FailureAlreadyInState, "folder star flag unchanged"
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				if err := s.store.SetFolderStarred(tc, folder.ID, starred); err != nil {
					return err
				}
				result.Add(item, "", "")

			case models.ResourceFile:
				file, reason, message, err := s.loadOwnedFile(tc, actorID, item.ID)
				if err != nil {
					return err
				}
				if reason == "" && file.IsStarred == starred {
					reason, message = models.FailureAlreadyInState, "file star flag unchanged"
				}
				if reason != "" {
					result.Add(item, reason, message)
					continue
				}
				if err := s.store.SetFileStarred(tc, file.ID, starred); err != nil {
					return err
				}
				result.Add(item, "", "")

			default:
				result.Add(item, models.FailureNotFound, "invalid resource type")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch star: %w", err)
	}
	return result, nil
}

// Single-resource operations are single-item batches reported as one
// explicit error instead of a result list.

func (s *BatchService) Trash(ctx context.Context, actorID primitive.ObjectID, item models.BatchItem) error {
	result, err := s.BatchTrash(ctx, actorID, []models.BatchItem{item})
	return singleError(result, err)
}

func (s *BatchService) Restore(ctx context.Context, actorID primitive.ObjectID, item models.BatchItem) error {
	result, err := s.BatchRestore(ctx, actorID, []models.BatchItem{item})
	return singleError(result, err)
}

func (s *BatchService) Delete(ctx context.Context, actorID primitive.ObjectID, item models.BatchItem) error {
	result, err := s.BatchDelete(ctx, actorID, []models.BatchItem{item})
	return singleError(result, err)
}

func (s *BatchService) Move(ctx context.Context, actorID primitive.ObjectID, item models.BatchItem, destinationID *primitive.ObjectID) error {
	result, err := s.BatchMove(ctx, actorID, []models.BatchItem{item}, destinationID)
	return singleError(result, err)
}

func (s *BatchService) Star(ctx context.Context, actorID primitive.ObjectID, item models.BatchItem, starred bool) error {
	result, err := s.BatchStar(ctx, actorID, []models.BatchItem{item}, starred)
	return singleError(result, err)
}

// GetTrashItems lists the owner's trash roots: trashed resources whose
// parent is not itself trashed, so a trashed subtree shows as one entry.
func (s *BatchService) GetTrashItems(ctx context.Context, ownerID primitive.ObjectID) ([]models.TrashItem, error) {
	folders, err := s.store.ListTrashedFolders(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListTrashedFiles(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	trashedFolders := make(map[primitive.ObjectID]bool, len(folders))
	for _, folder := range folders {
		trashedFolders[folder.ID] = true
	}

	var items []models.TrashItem
	for _, folder := range folders {
		if folder.ParentID != nil && trashedFolders[*folder.ParentID] {
			continue
		}
		items = append(items, trashEntry(folder.ID, models.ResourceFolder, folder.Name, folder.OwnerID, 0, folder.TrashedAt))
	}
	for _, file := range files {
		if file.FolderID != nil && trashedFolders[*file.FolderID] {
			continue
		}
		items = append(items, trashEntry(file.ID, models.ResourceFile, file.Name, file.OwnerID, file.Size, file.TrashedAt))
	}
	return items, nil
}

// PurgeExpired permanently deletes everything trashed longer than
// TrashRetention, per owner, through the same batch path so quota and
// object cleanup behave identically to a user-issued delete.
func (s *BatchService) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-TrashRetention)

	folders, err := s.store.ListTrashedFoldersBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	files, err := s.store.ListTrashedFilesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := make(map[primitive.ObjectID]bool, len(folders))
	for _, folder := range folders {
		expired[folder.ID] = true
	}

	// Purge only subtree roots; their descendants go with them.
	perOwner := make(map[primitive.ObjectID][]models.BatchItem)
	for _, folder := range folders {
		if containsAny(folder.Ancestors, expired) {
			continue
		}
		perOwner[folder.OwnerID] = append(perOwner[folder.OwnerID], models.BatchItem{ID: folder.ID, Type: models.ResourceFolder})
	}
	for _, file := range files {
		if file.FolderID != nil && expired[*file.FolderID] {
			continue
		}
		perOwner[file.OwnerID] = append(perOwner[file.OwnerID], models.BatchItem{ID: file.ID, Type: models.ResourceFile})
	}

	purged := 0
	for ownerID, items := range perOwner {
		result, err := s.BatchDelete(ctx, ownerID, items)
		if err != nil {
			return purged, err
		}
		purged += result.SuccessCount
	}
	return purged, nil
}

// cleanupObjects removes object bytes whose last referencing file record is
// gone. It runs detached from the caller's request, and deleting an
// already-absent object is harmless, so a crashed cleanup can simply run
// again.
func (s *BatchService) cleanupObjects(hashes map[string]bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for hash := range hashes {
		count, err := s.store.CountFilesBySHA1(ctx, hash)
		if err != nil {
			utils.LogWarning(fmt.Sprintf("object cleanup: refcount for %s failed: %v", hash, err))
			continue
		}
		if count > 0 {
			continue
		}
		if err := s.objects.Delete(ctx, hash); err != nil {
			utils.LogWarning(fmt.Sprintf("object cleanup: delete of %s failed: %v", hash, err))
		}
	}
}

func (s *BatchService) loadOwnedFolder(ctx context.Context, actorID, id primitive.ObjectID) (*models.Folder, models.FailureReason, string, error) {
	folder, err := s.store.FolderByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.FailureNotFound, "folder not found", nil
		}
		return nil, "", "", err
	}
	if folder.OwnerID != actorID {
		return nil, models.FailurePermissionDenied, "folder belongs to another user", nil
	}
	return folder, "", "", nil
}

func (s *BatchService) loadOwnedFile(ctx context.Context, actorID, id primitive.ObjectID) (*models.File, models.FailureReason, string, error) {
	file, err := s.store.FileByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.FailureNotFound, "file not found", nil
		}
		return nil, "", "", err
	}
	if file.OwnerID != actorID {
		return nil, models.FailurePermissionDenied, "file belongs to another user", nil
	}
	return file, "", "", nil
}

// expandSubtree resolves the effective set of a folder mutation: the folder
// with every descendant folder, and every file living in any of them.
func (s *BatchService) expandSubtree(ctx context.Context, folderID primitive.ObjectID) ([]primitive.ObjectID, []models.File, error) {
	folderIDs, err := s.folderService.DescendantIDs(ctx, folderID)
	if err != nil {
		return nil, nil, err
	}
	files, err := s.store.FilesInFolders(ctx, folderIDs)
	if err != nil {
		return nil, nil, err
	}
	return folderIDs, files, nil
}

func fileIDs(files []models.File) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(files))
	for _, file := range files {
		ids = append(ids, file.ID)
	}
	return ids
}

func (s *BatchService) checkRestoreTarget(ctx context.Context, parentID primitive.ObjectID) (models.FailureReason, string, error) {
	parent, err := s.store.FolderByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.FailureNotFound, "parent folder no longer exists", nil
		}
		return "", "", err
	}
	if parent.IsTrashed {
		return models.FailureNotFound, "parent folder is in trash", nil
	}
	return "", "", nil
}

func sameParent(a, b *primitive.ObjectID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func containsAny(ids []primitive.ObjectID, set map[primitive.ObjectID]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}

func trashEntry(id primitive.ObjectID, itemType models.ResourceType, name string, ownerID primitive.ObjectID, size int64, trashedAt *time.Time) models.TrashItem {
	entry := models.TrashItem{
		ItemID:   id,
		ItemType: itemType,
		Name:     name,
		OwnerID:  ownerID,
		Size:     size,
	}
	if trashedAt != nil {
		entry.TrashedAt = *trashedAt
		entry.AutoPurgeAt = trashedAt.Add(TrashRetention)
	}
	return entry
}

// singleError converts a one-item batch outcome into an explicit error.
func singleError(result *models.BatchResult, err error) error {
	if err != nil {
		return err
	}
	if len(result.Results) == 0 {
		return fmt.Errorf("empty batch: %w", models.ErrConflict)
	}
	r := result.Results[0]
	if r.Success {
		return nil
	}
	switch r.Reason {
	case models.FailureNotFound:
		return fmt.Errorf("%s: %w", r.Error, models.ErrNotFound)
	case models.FailurePermissionDenied:
		return fmt.Errorf("%s: %w", r.Error, models.ErrForbidden)
	default:
		return fmt.Errorf("%s: %w", r.Error, models.ErrConflict)
	}
}
