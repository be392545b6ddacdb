package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
)

func TestAuthorizeOwnerSatisfiesEveryRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	sub := e.newFolder(t, e.owner, root, "sub")
	file := e.newFile(t, e.owner, sub, "doc.txt", 10, "aaa")

	for _, role := range []models.Role{models.RoleViewer, models.RoleCommenter, models.RoleEditor, models.RoleOwner} {
		ok, err := e.perms.Authorize(ctx, AccessRequest{ActorID: &e.owner}, file.ID, models.ResourceFile, role)
		require.NoError(t, err)
		assert.True(t, ok, "owner should satisfy role %s", role)
	}
}

func TestAuthorizeDeniesWithoutLeakingExistence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "private")

	// Real but forbidden resource.
	ok, err := e.perms.Authorize(ctx, AccessRequest{ActorID: &e.other}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)

	// Nonexistent resource: same answer, same nil error.
	ok, err = e.perms.Authorize(ctx, AccessRequest{ActorID: &e.other}, primitive.NewObjectID(), models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeRejectsInvalidRoleAndType(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "root")

	ok, err := e.perms.Authorize(ctx, AccessRequest{ActorID: &e.owner}, folder.ID, models.ResourceFolder, models.Role("admin"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.perms.Authorize(ctx, AccessRequest{ActorID: &e.owner}, folder.ID, models.ResourceType("bucket"), models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeGrantInheritedThroughAncestors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	sub := e.newFolder(t, e.owner, root, "sub")
	file := e.newFile(t, e.owner, sub, "doc.txt", 10, "aaa")

	_, err := e.shares.ShareResource(ctx, e.owner, root.ID, models.ResourceFolder, e.other, models.RoleEditor, nil)
	require.NoError(t, err)

	// Grant on the root flows to the nested file.
	ok, err := e.perms.Authorize(ctx, AccessRequest{ActorID: &e.other}, file.ID, models.ResourceFile, models.RoleEditor)
	require.NoError(t, err)
	assert.True(t, ok)

	// But it never confers ownership.
	ok, err = e.perms.Authorize(ctx, AccessRequest{ActorID: &e.other}, file.ID, models.ResourceFile, models.RoleOwner)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeGrantRoleMustSatisfyRequired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "root")
	_, err := e.shares.ShareResource(ctx, e.owner, folder.ID, models.ResourceFolder, e.other, models.RoleViewer, nil)
	require.NoError(t, err)

	ok, err := e.perms.Authorize(ctx, AccessRequest{ActorID: &e.other}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.perms.Authorize(ctx, AccessRequest{ActorID: &e.other}, folder.ID, models.ResourceFolder, models.RoleEditor)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeExpiredGrantDenied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "root")
	past := time.Now().Add(-time.Hour)
	_, err := e.shares.ShareResource(ctx, e.owner, folder.ID, models.ResourceFolder, e.other, models.RoleEditor, &past)
	require.NoError(t, err)

	ok, err := e.perms.Authorize(ctx, AccessRequest{ActorID: &e.other}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeOpenLinkAllowsAnonymous(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.newFolder(t, e.owner, nil, "root")
	sub := e.newFolder(t, e.owner, root, "sub")
	file := e.newFile(t, e.owner, sub, "doc.txt", 10, "aaa")

	_, err := e.shares.CreateLink(ctx, e.owner, root.ID, models.ResourceFolder, LinkParams{Mode: models.LinkOpen, Role: models.RoleViewer})
	require.NoError(t, err)

	// No identity, no token: the open link on the ancestor is enough.
	ok, err := e.perms.Authorize(ctx, AccessRequest{}, file.ID, models.ResourceFile, models.RoleViewer)
	require.NoError(t, err)
	assert.True(t, ok)

	// The link's role is still a ceiling.
	ok, err = e.perms.Authorize(ctx, AccessRequest{}, file.ID, models.ResourceFile, models.RoleEditor)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeRestrictedLinkNeedsToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "root")
	policy, err := e.shares.CreateLink(ctx, e.owner, folder.ID, models.ResourceFolder, LinkParams{Mode: models.LinkRestricted, Role: models.RoleViewer})
	require.NoError(t, err)

	ok, err := e.perms.Authorize(ctx, AccessRequest{}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok, "restricted link must not grant anonymous access")

	ok, err = e.perms.Authorize(ctx, AccessRequest{Token: policy.Token}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.perms.Authorize(ctx, AccessRequest{Token: "bogus"}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeRestrictedLinkPassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "root")
	policy, err := e.shares.CreateLink(ctx, e.owner, folder.ID, models.ResourceFolder, LinkParams{
		Mode:     models.LinkRestricted,
		Role:     models.RoleViewer,
		Password: "hunter2",
	})
	require.NoError(t, err)

	ok, err := e.perms.Authorize(ctx, AccessRequest{Token: policy.Token}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok, "password-protected link without password")

	ok, err = e.perms.Authorize(ctx, AccessRequest{Token: policy.Token, Password: "wrong"}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.perms.Authorize(ctx, AccessRequest{Token: policy.Token, Password: "hunter2"}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthorizeRotatedTokenStopsWorking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "root")
	policy, err := e.shares.CreateLink(ctx, e.owner, folder.ID, models.ResourceFolder, LinkParams{Mode: models.LinkRestricted, Role: models.RoleViewer})
	require.NoError(t, err)
	oldToken := policy.Token

	rotated, err := e.shares.RotateLinkToken(ctx, e.owner, folder.ID, models.ResourceFolder)
	require.NoError(t, err)
	require.NotEqual(t, oldToken, rotated.Token)

	ok, err := e.perms.Authorize(ctx, AccessRequest{Token: oldToken}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.perms.Authorize(ctx, AccessRequest{Token: rotated.Token}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthorizeExpiredLinkDenied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "root")
	past := time.Now().Add(-time.Minute)
	policy, err := e.shares.CreateLink(ctx, e.owner, folder.ID, models.ResourceFolder, LinkParams{
		Mode:      models.LinkRestricted,
		Role:      models.RoleViewer,
		ExpiresAt: &past,
	})
	require.NoError(t, err)

	ok, err := e.perms.Authorize(ctx, AccessRequest{Token: policy.Token}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeExhaustedLinkDenied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "root")
	limit := int64(1)
	policy, err := e.shares.CreateLink(ctx, e.owner, folder.ID, models.ResourceFolder, LinkParams{
		Mode:           models.LinkRestricted,
		Role:           models.RoleViewer,
		MaxAccessCount: &limit,
	})
	require.NoError(t, err)

	// Checking access does not consume the budget.
	ok, err := e.perms.Authorize(ctx, AccessRequest{Token: policy.Token}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.shares.RecordLinkAccess(ctx, folder.ID, models.ResourceFolder, policy.Token))

	ok, err = e.perms.Authorize(ctx, AccessRequest{Token: policy.Token}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeRevokedLinkDenied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder := e.newFolder(t, e.owner, nil, "root")
	policy, err := e.shares.CreateLink(ctx, e.owner, folder.ID, models.ResourceFolder, LinkParams{Mode: models.LinkOpen, Role: models.RoleViewer})
	require.NoError(t, err)

	require.NoError(t, e.shares.RevokeLink(ctx, e.owner, folder.ID, models.ResourceFolder))

	ok, err := e.perms.Authorize(ctx, AccessRequest{Token: policy.Token}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.perms.Authorize(ctx, AccessRequest{}, folder.ID, models.ResourceFolder, models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)
}
