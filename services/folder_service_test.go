package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
)

func TestCreateFolderBuildsAncestorPath(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root, err := e.folders.CreateFolder(ctx, e.owner, "root", nil)
	require.NoError(t, err)
	assert.Empty(t, root.Ancestors)
	assert.Nil(t, root.ParentID)

	sub, err := e.folders.CreateFolder(ctx, e.owner, "sub", &root.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{root.ID}, sub.Ancestors)

	deep, err := e.folders.CreateFolder(ctx, e.owner, "deep", &sub.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{root.ID, sub.ID}, deep.Ancestors)
}

func TestCreateFolderRequiresEditorOnParent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")

	_, err := e.folders.CreateFolder(ctx, e.other, "intruder", &root.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	// A viewer grant is not enough, an editor grant is.
	_, err = e.shares.ShareResource(ctx, e.owner, root.ID, models.ResourceFolder, e.other, models.RoleViewer, nil)
	require.NoError(t, err)
	_, err = e.folders.CreateFolder(ctx, e.other, "still no", &root.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.shares.ShareResource(ctx, e.owner, root.ID, models.ResourceFolder, e.other, models.RoleEditor, nil)
	require.NoError(t, err)
	created, err := e.folders.CreateFolder(ctx, e.other, "allowed", &root.ID)
	require.NoError(t, err)
	assert.Equal(t, e.other, created.OwnerID)
}

func TestCreateFolderUnderTrashedParent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	require.NoError(t, e.batch.Trash(ctx, e.owner, folderItem(root.ID)))

	_, err := e.folders.CreateFolder(ctx, e.owner, "sub", &root.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCreateFileChargesQuota(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")

	file, err := e.folders.CreateFile(ctx, e.owner, "doc.txt", 100, "text/plain", "aaa", &root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), e.mustUser(t, e.owner).StorageUsed)
	assert.Equal(t, "aaa", file.SHA1Hash)
}

func TestCreateFileQuotaExceeded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.folders.CreateFile(ctx, e.owner, "huge.bin", 2<<30, "application/octet-stream", "bbb", nil)
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)

	// Nothing was recorded.
	assert.Equal(t, int64(0), e.mustUser(t, e.owner).StorageUsed)
}

func TestCreateFileInTrashedFolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	require.NoError(t, e.batch.Trash(ctx, e.owner, folderItem(root.ID)))

	_, err := e.folders.CreateFile(ctx, e.owner, "doc.txt", 10, "text/plain", "aaa", &root.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestDescendantIDsIncludesSelfAndSubtree(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	sub := e.newFolder(t, e.owner, root, "sub")
	deep := e.newFolder(t, e.owner, sub, "deep")
	e.newFolder(t, e.owner, nil, "sibling")

	ids, err := e.folders.DescendantIDs(ctx, root.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []primitive.ObjectID{root.ID, sub.ID, deep.ID}, ids)
}

func TestFileDownloadInfo(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	file := e.newFile(t, e.owner, root, "doc.txt", 10, "aaa")

	// Owner reads it; a stranger sees nothing.
	got, err := e.folders.FileDownloadInfo(ctx, AccessRequest{ActorID: &e.owner}, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "aaa", got.SHA1Hash)

	_, err = e.folders.FileDownloadInfo(ctx, AccessRequest{ActorID: &e.other}, file.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// A link token on the parent folder opens the file for anonymous visitors.
	policy, err := e.shares.CreateLink(ctx, e.owner, root.ID, models.ResourceFolder, LinkParams{Mode: models.LinkRestricted, Role: models.RoleViewer})
	require.NoError(t, err)
	_, err = e.folders.FileDownloadInfo(ctx, AccessRequest{Token: policy.Token}, file.ID)
	require.NoError(t, err)

	// A trashed file reads as missing even for its owner.
	require.NoError(t, e.batch.Trash(ctx, e.owner, fileItem(file.ID)))
	_, err = e.folders.FileDownloadInfo(ctx, AccessRequest{ActorID: &e.owner}, file.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestValidateMove(t *testing.T) {
	rootID := primitive.NewObjectID()
	folder := &models.Folder{ID: primitive.NewObjectID(), Ancestors: []primitive.ObjectID{rootID}}
	inside := &models.Folder{ID: primitive.NewObjectID(), Ancestors: []primitive.ObjectID{rootID, folder.ID}}
	outside := &models.Folder{ID: primitive.NewObjectID(), Ancestors: []primitive.ObjectID{rootID}}

	assert.NoError(t, validateMove(folder, nil))
	assert.NoError(t, validateMove(folder, outside))
	assert.ErrorIs(t, validateMove(folder, folder), models.ErrConflict)
	assert.ErrorIs(t, validateMove(folder, inside), models.ErrConflict)
}

func TestRewriteAncestors(t *testing.T) {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	c := primitive.NewObjectID()
	d := primitive.NewObjectID()

	// Descendant path [a b c]; b moves under d: prefix becomes [d b].
	got := rewriteAncestors([]primitive.ObjectID{a, b, c}, b, []primitive.ObjectID{d, b})
	assert.Equal(t, []primitive.ObjectID{d, b, c}, got)

	// b moves to root level: prefix is just [b].
	got = rewriteAncestors([]primitive.ObjectID{a, b, c}, b, []primitive.ObjectID{b})
	assert.Equal(t, []primitive.ObjectID{b, c}, got)

	// Paths not containing the moved folder are untouched.
	got = rewriteAncestors([]primitive.ObjectID{a, c}, b, []primitive.ObjectID{d, b})
	assert.Equal(t, []primitive.ObjectID{a, c}, got)
}

func TestMoveFolderRewritesDescendantPaths(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	sub := e.newFolder(t, e.owner, root, "sub")
	deep := e.newFolder(t, e.owner, sub, "deep")
	dest := e.newFolder(t, e.owner, nil, "dest")

	require.NoError(t, e.batch.Move(ctx, e.owner, folderItem(sub.ID), &dest.ID))

	movedSub := e.mustFolder(t, sub.ID)
	require.NotNil(t, movedSub.ParentID)
	assert.Equal(t, dest.ID, *movedSub.ParentID)
	assert.Equal(t, []primitive.ObjectID{dest.ID}, movedSub.Ancestors)

	movedDeep := e.mustFolder(t, deep.ID)
	assert.Equal(t, []primitive.ObjectID{dest.ID, sub.ID}, movedDeep.Ancestors)

	// The old parent keeps its own path.
	assert.Empty(t, e.mustFolder(t, root.ID).Ancestors)
}

func TestMoveFolderRoundTripRestoresPaths(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	sub := e.newFolder(t, e.owner, root, "sub")
	deep := e.newFolder(t, e.owner, sub, "deep")
	file := e.newFile(t, e.owner, deep, "doc.txt", 10, "aaa")
	dest := e.newFolder(t, e.owner, nil, "dest")

	require.NoError(t, e.batch.Move(ctx, e.owner, folderItem(sub.ID), &dest.ID))
	require.NoError(t, e.batch.Move(ctx, e.owner, folderItem(sub.ID), &root.ID))

	// Moving back under the original parent restores every path exactly.
	movedSub := e.mustFolder(t, sub.ID)
	require.NotNil(t, movedSub.ParentID)
	assert.Equal(t, root.ID, *movedSub.ParentID)
	assert.Equal(t, []primitive.ObjectID{root.ID}, movedSub.Ancestors)
	assert.Equal(t, []primitive.ObjectID{root.ID, sub.ID}, e.mustFolder(t, deep.ID).Ancestors)

	movedFile := e.mustFile(t, file.ID)
	require.NotNil(t, movedFile.FolderID)
	assert.Equal(t, deep.ID, *movedFile.FolderID)
}

func TestMoveFolderToRootLevel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	sub := e.newFolder(t, e.owner, root, "sub")
	deep := e.newFolder(t, e.owner, sub, "deep")

	require.NoError(t, e.batch.Move(ctx, e.owner, folderItem(sub.ID), nil))

	movedSub := e.mustFolder(t, sub.ID)
	assert.Nil(t, movedSub.ParentID)
	assert.Empty(t, movedSub.Ancestors)

	movedDeep := e.mustFolder(t, deep.ID)
	assert.Equal(t, []primitive.ObjectID{sub.ID}, movedDeep.Ancestors)
}
