package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/store"
)

// env wires the service stack over an in-memory store with two registered
// users.
type env struct {
	store   *store.MemoryStore
	perms   *PermissionService
	folders *FolderService
	shares  *ShareService
	batch   *BatchService
	objects *fakeObjects

	owner primitive.ObjectID
	other primitive.ObjectID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := store.NewMemoryStore()
	perms := NewPermissionService(st)
	folders := NewFolderService(st, perms)
	shares := NewShareService(st, perms, nil)
	objects := &fakeObjects{}
	batch := NewBatchService(st, folders, objects)

	ctx := context.Background()
	owner := &models.User{ID: primitive.NewObjectID(), Email: "owner@example.com", Name: "Owner", MaxStorage: 1 << 30}
	other := &models.User{ID: primitive.NewObjectID(), Email: "other@example.com", Name: "Other", MaxStorage: 1 << 30}
	require.NoError(t, st.InsertUser(ctx, owner))
	require.NoError(t, st.InsertUser(ctx, other))

	return &env{
		store:   st,
		perms:   perms,
		folders: folders,
		shares:  shares,
		batch:   batch,
		objects: objects,
		owner:   owner.ID,
		other:   other.ID,
	}
}

// newFolder inserts a folder directly, deriving its ancestor path from the
// parent so fixtures do not depend on the service under test.
func (e *env) newFolder(t *testing.T, ownerID primitive.ObjectID, parent *models.Folder, name string) *models.Folder {
	t.Helper()
	now := time.Now()
	folder := &models.Folder{
		ID:        primitive.NewObjectID(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parent != nil {
		folder.ParentID = &parent.ID
		folder.Ancestors = append(append([]primitive.ObjectID{}, parent.Ancestors...), parent.ID)
	}
	require.NoError(t, e.store.InsertFolder(context.Background(), folder))
	return folder
}

func (e *env) newFile(t *testing.T, ownerID primitive.ObjectID, folder *models.Folder, name string, size int64, sha1 string) *models.File {
	t.Helper()
	now := time.Now()
	file := &models.File{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Size:      size,
		SHA1Hash:  sha1,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if folder != nil {
		file.FolderID = &folder.ID
	}
	ctx := context.Background()
	require.NoError(t, e.store.InsertFile(ctx, file))
	if size > 0 {
		require.NoError(t, e.store.AdjustStorageUsed(ctx, ownerID, size))
	}
	return file
}

func (e *env) mustFolder(t *testing.T, id primitive.ObjectID) *models.Folder {
	t.Helper()
	folder, err := e.store.FolderByID(context.Background(), id)
	require.NoError(t, err)
	return folder
}

func (e *env) mustFile(t *testing.T, id primitive.ObjectID) *models.File {
	t.Helper()
	file, err := e.store.FileByID(context.Background(), id)
	require.NoError(t, err)
	return file
}

func (e *env) mustUser(t *testing.T, id primitive.ObjectID) *models.User {
	t.Helper()
	user, err := e.store.UserByID(context.Background(), id)
	require.NoError(t, err)
	return user
}

func folderItem(id primitive.ObjectID) models.BatchItem {
	return models.BatchItem{ID: id, Type: models.ResourceFolder}
}

func fileItem(id primitive.ObjectID) models.BatchItem {
	return models.BatchItem{ID: id, Type: models.ResourceFile}
}

// fakeObjects records deletions so tests can observe post-commit cleanup.
type fakeObjects struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeObjects) Exists(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeObjects) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
