package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
)

// MemoryStore is an in-memory Store used by the test suites. A transaction
// holds the store lock for its whole duration and restores a snapshot on
// rollback, which gives the same observable atomicity as the Mongo
// implementation.
type MemoryStore struct {
	mu      sync.Mutex
	folders map[primitive.ObjectID]*models.Folder
	files   map[primitive.ObjectID]*models.File
	grants  map[grantKey]*models.AccessGrant
	users   map[primitive.ObjectID]*models.User

	// FailNextCommit makes the next transaction roll back with
	// models.ErrTransactionFailed, simulating an infrastructure failure.
	FailNextCommit bool
}

type grantKey struct {
	resourceID primitive.ObjectID
	granteeID  primitive.ObjectID
}

type memTxKey struct{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		folders: make(map[primitive.ObjectID]*models.Folder),
		files:   make(map[primitive.ObjectID]*models.File),
		grants:  make(map[grantKey]*models.AccessGrant),
		users:   make(map[primitive.ObjectID]*models.User),
	}
}

func (s *MemoryStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) FolderByID(ctx context.Context, id primitive.ObjectID) (*models.Folder, error) {
	defer s.lock(ctx)()
	folder, ok := s.folders[id]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", id.Hex(), models.ErrNotFound)
	}
	return cloneFolder(folder), nil
}

func (s *MemoryStore) FoldersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Folder, error) {
	defer s.lock(ctx)()
	var folders []models.Folder
	for _, id := range ids {
		if folder, ok := s.folders[id]; ok {
			folders = append(folders, *cloneFolder(folder))
		}
	}
	return folders, nil
}

func (s *MemoryStore) InsertFolder(ctx context.Context, folder *models.Folder) error {
	defer s.lock(ctx)()
	if folder.ID.IsZero() {
		folder.ID = primitive.NewObjectID()
	}
	s.folders[folder.ID] = cloneFolder(folder)
	return nil
}

func (s *MemoryStore) FolderDescendants(ctx context.Context, id primitive.ObjectID) ([]models.Folder, error) {
	defer s.lock(ctx)()
	var folders []models.Folder
	for _, folder := range s.folders {
		for _, ancestor := range folder.Ancestors {
			if ancestor == id {
				folders = append(folders, *cloneFolder(folder))
				break
			}
		}
	}
	return folders, nil
}

func (s *MemoryStore) UpdateFolderParent(ctx context.Context, id primitive.ObjectID, parentID *primitive.ObjectID, ancestors []primitive.ObjectID) error {
	defer s.lock(ctx)()
	folder, ok := s.folders[id]
	if !ok {
		return fmt.Errorf("folder %s: %w", id.Hex(), models.ErrNotFound)
	}
	folder.ParentID = cloneID(parentID)
	folder.Ancestors = append([]primitive.ObjectID(nil), ancestors...)
	folder.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdateFolderAncestors(ctx context.Context, ancestors map[primitive.ObjectID][]primitive.ObjectID) error {
	defer s.lock(ctx)()
	for id, anc := range ancestors {
		folder, ok := s.folders[id]
		if !ok {
			return fmt.Errorf("folder %s: %w", id.Hex(), models.ErrNotFound)
		}
		folder.Ancestors = append([]primitive.ObjectID(nil), anc...)
		folder.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) SetFoldersTrashed(ctx context.Context, ids []primitive.ObjectID, trashed bool, at *time.Time) error {
	defer s.lock(ctx)()
	for _, id := range ids {
		if folder, ok := s.folders[id]; ok {
			folder.IsTrashed = trashed
			folder.TrashedAt = cloneTime(at)
			folder.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *MemoryStore) SetFilesTrashed(ctx context.Context, ids []primitive.ObjectID, trashed bool, at *time.Time) error {
	defer s.lock(ctx)()
	for _, id := range ids {
		if file, ok := s.files[id]; ok {
			file.IsTrashed = trashed
			file.TrashedAt = cloneTime(at)
			file.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *MemoryStore) SetFolderStarred(ctx context.Context, id primitive.ObjectID, starred bool) error {
	defer s.lock(ctx)()
	folder, ok := s.folders[id]
	if !ok {
		return fmt.Errorf("folder %s: %w", id.Hex(), models.ErrNotFound)
	}
	folder.IsStarred = starred
	folder.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetFileStarred(ctx context.Context, id primitive.ObjectID, starred bool) error {
	defer s.lock(ctx)()
	file, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id.Hex(), models.ErrNotFound)
	}
	file.IsStarred = starred
	file.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteFolders(ctx context.Context, ids []primitive.ObjectID) error {
	defer s.lock(ctx)()
	for _, id := range ids {
		delete(s.folders, id)
	}
	return nil
}

func (s *MemoryStore) ListTrashedFolders(ctx context.Context, ownerID primitive.ObjectID) ([]models.Folder, error) {
	defer s.lock(ctx)()
	var folders []models.Folder
	for _, folder := range s.folders {
		if folder.OwnerID == ownerID && folder.IsTrashed {
			folders = append(folders, *cloneFolder(folder))
		}
	}
	return folders, nil
}

func (s *MemoryStore) ListTrashedFoldersBefore(ctx context.Context, cutoff time.Time) ([]models.Folder, error) {
	defer s.lock(ctx)()
	var folders []models.Folder
	for _, folder := range s.folders {
		if folder.IsTrashed && folder.TrashedAt != nil && !folder.TrashedAt.After(cutoff) {
			folders = append(folders, *cloneFolder(folder))
		}
	}
	return folders, nil
}

func (s *MemoryStore) ListTrashedFilesBefore(ctx context.Context, cutoff time.Time) ([]models.File, error) {
	defer s.lock(ctx)()
	var files []models.File
	for _, file := range s.files {
		if file.IsTrashed && file.TrashedAt != nil && !file.TrashedAt.After(cutoff) {
			files = append(files, *cloneFile(file))
		}
	}
	return files, nil
}

func (s *MemoryStore) FileByID(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	defer s.lock(ctx)()
	file, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id.Hex(), models.ErrNotFound)
	}
	return cloneFile(file), nil
}

func (s *MemoryStore) InsertFile(ctx context.Context, file *models.File) error {
	defer s.lock(ctx)()
	if file.ID.IsZero() {
		file.ID = primitive.NewObjectID()
	}
	s.files[file.ID] = cloneFile(file)
	return nil
}

func (s *MemoryStore) FilesInFolders(ctx context.Context, folderIDs []primitive.ObjectID) ([]models.File, error) {
	defer s.lock(ctx)()
	members := make(map[primitive.ObjectID]bool, len(folderIDs))
	for _, id := range folderIDs {
		members[id] = true
	}
	var files []models.File
	for _, file := range s.files {
		if file.FolderID != nil && members[*file.FolderID] {
			files = append(files, *cloneFile(file))
		}
	}
	return files, nil
}

func (s *MemoryStore) UpdateFileFolder(ctx context.Context, id primitive.ObjectID, folderID *primitive.ObjectID) error {
	defer s.lock(ctx)()
	file, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id.Hex(), models.ErrNotFound)
	}
	file.FolderID = cloneID(folderID)
	file.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteFiles(ctx context.Context, ids []primitive.ObjectID) error {
	defer s.lock(ctx)()
	for _, id := range ids {
		delete(s.files, id)
	}
	return nil
}

func (s *MemoryStore) ListTrashedFiles(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error) {
	defer s.lock(ctx)()
	var files []models.File
	for _, file := range s.files {
		if file.OwnerID == ownerID && file.IsTrashed {
			files = append(files, *cloneFile(file))
		}
	}
	return files, nil
}

func (s *MemoryStore) CountFilesBySHA1(ctx context.Context, hash string) (int64, error) {
	defer s.lock(ctx)()
	var count int64
	for _, file := range s.files {
		if file.SHA1Hash == hash {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) UpsertGrant(ctx context.Context, grant *models.AccessGrant) error {
	defer s.lock(ctx)()
	key := grantKey{resourceID: grant.ResourceID, granteeID: grant.GranteeID}
	if existing, ok := s.grants[key]; ok {
		existing.Role = grant.Role
		existing.GranterID = grant.GranterID
		existing.ExpiresAt = cloneTime(grant.ExpiresAt)
		existing.UpdatedAt = grant.UpdatedAt
		return nil
	}
	s.grants[key] = cloneGrant(grant)
	return nil
}

func (s *MemoryStore) DeleteGrant(ctx context.Context, resourceID, granteeID primitive.ObjectID) error {
	defer s.lock(ctx)()
	key := grantKey{resourceID: resourceID, granteeID: granteeID}
	if _, ok := s.grants[key]; !ok {
		return fmt.Errorf("grant: %w", models.ErrNotFound)
	}
	delete(s.grants, key)
	return nil
}

func (s *MemoryStore) DeleteGrantsOnResources(ctx context.Context, resourceIDs []primitive.ObjectID) error {
	defer s.lock(ctx)()
	members := make(map[primitive.ObjectID]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		members[id] = true
	}
	for key := range s.grants {
		if members[key.resourceID] {
			delete(s.grants, key)
		}
	}
	return nil
}

func (s *MemoryStore) GrantsOnResource(ctx context.Context, resourceID primitive.ObjectID) ([]models.AccessGrant, error) {
	defer s.lock(ctx)()
	var grants []models.AccessGrant
	for key, grant := range s.grants {
		if key.resourceID == resourceID {
			grants = append(grants, *cloneGrant(grant))
		}
	}
	return grants, nil
}

func (s *MemoryStore) GrantsFor(ctx context.Context, granteeID primitive.ObjectID, resourceIDs []primitive.ObjectID) ([]models.AccessGrant, error) {
	defer s.lock(ctx)()
	members := make(map[primitive.ObjectID]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		members[id] = true
	}
	var grants []models.AccessGrant
	for key, grant := range s.grants {
		if key.granteeID == granteeID && members[key.resourceID] {
			grants = append(grants, *cloneGrant(grant))
		}
	}
	return grants, nil
}

func (s *MemoryStore) SetLinkShare(ctx context.Context, resourceType models.ResourceType, id primitive.ObjectID, policy *models.LinkSharePolicy) error {
	defer s.lock(ctx)()
	if resourceType == models.ResourceFolder {
		folder, ok := s.folders[id]
		if !ok {
			return fmt.Errorf("resource %s: %w", id.Hex(), models.ErrNotFound)
		}
		folder.LinkShare = clonePolicy(policy)
		folder.UpdatedAt = time.Now()
		return nil
	}
	file, ok := s.files[id]
	if !ok {
		return fmt.Errorf("resource %s: %w", id.Hex(), models.ErrNotFound)
	}
	file.LinkShare = clonePolicy(policy)
	file.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) IncrementLinkAccess(ctx context.Context, resourceType models.ResourceType, id primitive.ObjectID, token string) error {
	defer s.lock(ctx)()
	var policy *models.LinkSharePolicy
	if resourceType == models.ResourceFolder {
		if folder, ok := s.folders[id]; ok {
			policy = folder.LinkShare
		}
	} else {
		if file, ok := s.files[id]; ok {
			policy = file.LinkShare
		}
	}
	if policy == nil || policy.Token != token {
		return fmt.Errorf("link access: %w", models.ErrForbidden)
	}
	policy.AccessCount++
	return nil
}

func (s *MemoryStore) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	defer s.lock(ctx)()
	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id.Hex(), models.ErrNotFound)
	}
	clone := *user
	return &clone, nil
}

func (s *MemoryStore) InsertUser(ctx context.Context, user *models.User) error {
	defer s.lock(ctx)()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *MemoryStore) AdjustStorageUsed(ctx context.Context, ownerID primitive.ObjectID, delta int64) error {
	defer s.lock(ctx)()
	user, ok := s.users[ownerID]
	if !ok {
		return fmt.Errorf("user %s: %w", ownerID.Hex(), models.ErrNotFound)
	}
	user.StorageUsed += delta
	user.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	err := fn(context.WithValue(ctx, memTxKey{}, true))
	if err != nil {
		s.restore(snapshot)
		return err
	}
	if s.FailNextCommit {
		s.FailNextCommit = false
		s.restore(snapshot)
		return fmt.Errorf("commit: %w", models.ErrTransactionFailed)
	}
	return nil
}

type memSnapshot struct {
	folders map[primitive.ObjectID]*models.Folder
	files   map[primitive.ObjectID]*models.File
	grants  map[grantKey]*models.AccessGrant
	users   map[primitive.ObjectID]*models.User
}

func (s *MemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		folders: make(map[primitive.ObjectID]*models.Folder, len(s.folders)),
		files:   make(map[primitive.ObjectID]*models.File, len(s.files)),
		grants:  make(map[grantKey]*models.AccessGrant, len(s.grants)),
		users:   make(map[primitive.ObjectID]*models.User, len(s.users)),
	}
	for id, folder := range s.folders {
		snap.folders[id] = cloneFolder(folder)
	}
	for id, file := range s.files {
		snap.files[id] = cloneFile(file)
	}
	for key, grant := range s.grants {
		snap.grants[key] = cloneGrant(grant)
	}
	for id, user := range s.users {
		clone := *user
		snap.users[id] = &clone
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.folders = snap.folders
	s.files = snap.files
	s.grants = snap.grants
	s.users = snap.users
}

func cloneFolder(f *models.Folder) *models.Folder {
	clone := *f
	clone.ParentID = cloneID(f.ParentID)
	clone.Ancestors = append([]primitive.ObjectID(nil), f.Ancestors...)
	clone.TrashedAt = cloneTime(f.TrashedAt)
	clone.LinkShare = clonePolicy(f.LinkShare)
	return &clone
}

func cloneFile(f *models.File) *models.File {
	clone := *f
	clone.FolderID = cloneID(f.FolderID)
	clone.TrashedAt = cloneTime(f.TrashedAt)
	clone.LinkShare = clonePolicy(f.LinkShare)
	return &clone
}

func cloneGrant(g *models.AccessGrant) *models.AccessGrant {
	clone := *g
	clone.ExpiresAt = cloneTime(g.ExpiresAt)
	return &clone
}

func clonePolicy(p *models.LinkSharePolicy) *models.LinkSharePolicy {
	if p == nil {
		return nil
	}
	clone := *p
	clone.PasswordHash = append([]byte(nil), p.PasswordHash...)
	clone.ExpiresAt = cloneTime(p.ExpiresAt)
	if p.MaxAccessCount != nil {
		max := *p.MaxAccessCount
		clone.MaxAccessCount = &max
	}
	return &clone
}

func cloneID(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	clone := *id
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
