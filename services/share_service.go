package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/store"
	"github.com/fyerfyer/fyer-drive-sub000/utils"
)

// Notifier delivers share notifications. Enqueue failures are logged and
// never fail the share operation itself.
type Notifier interface {
	ResourceShared(ctx context.Context, granteeID, granterID primitive.ObjectID, resourceType models.ResourceType, resourceID primitive.ObjectID, resourceName string) error
}

// ShareService owns AccessGrant rows and per-resource link share policies.
// Every mutation requires the acting user's effective role to be owner.
type ShareService struct {
	store             store.Store
	permissionService *PermissionService
	notifier          Notifier
}

func NewShareService(st store.Store, permissionService *PermissionService, notifier Notifier) *ShareService {
	return &ShareService{
		store:             st,
		permissionService: permissionService,
		notifier:          notifier,
	}
}

// ShareResource grants granteeID a role on the resource. Sharing is an
// upsert keyed on (resource, grantee): re-sharing updates role and expiry,
// it never duplicates the grant.
func (s *ShareService) ShareResource(ctx context.Context, actorID, resourceID primitive.ObjectID, resourceType models.ResourceType, granteeID primitive.ObjectID, role models.Role, expiresAt *time.Time) (*models.AccessGrant, error) {
	if !role.Valid() || role == models.RoleOwner {
		return nil, fmt.Errorf("invalid grant role %q: %w", role, models.ErrConflict)
	}
	if granteeID == actorID {
		return nil, fmt.Errorf("cannot share with yourself: %w", models.ErrConflict)
	}
	if err := s.requireOwner(ctx, actorID, resourceID, resourceType); err != nil {
		return nil, err
	}
	if _, err := s.store.UserByID(ctx, granteeID); err != nil {
		return nil, fmt.Errorf("grantee: %w", err)
	}

	now := time.Now()
	grant := &models.AccessGrant{
		ID:           primitive.NewObjectID(),
		ResourceID:   resourceID,
		ResourceType: resourceType,
		GranteeID:    granteeID,
		GranterID:    actorID,
		Role:         role,
		ExpiresAt:    expiresAt,
		GrantedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.UpsertGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to save grant: %w", err)
	}

	if s.notifier != nil {
		name := s.resourceName(ctx, resourceID, resourceType)
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.notifier.ResourceShared(nctx, granteeID, actorID, resourceType, resourceID, name); err != nil {
				utils.LogWarning(fmt.Sprintf("share notification failed for %s: %v", resourceID.Hex(), err))
			}
		}()
	}

	return grant, nil
}

// RevokeGrant removes the grantee's access to the resource.
func (s *ShareService) RevokeGrant(ctx context.Context, actorID, resourceID primitive.ObjectID, resourceType models.ResourceType, granteeID primitive.ObjectID) error {
	if err := s.requireOwner(ctx, actorID, resourceID, resourceType); err != nil {
		return err
	}
	return s.store.DeleteGrant(ctx, resourceID, granteeID)
}

// GrantsOn lists every grant on the resource.
func (s *ShareService) GrantsOn(ctx context.Context, actorID, resourceID primitive.ObjectID, resourceType models.ResourceType) ([]models.AccessGrant, error) {
	if err := s.requireOwner(ctx, actorID, resourceID, resourceType); err != nil {
		return nil, err
	}
	return s.store.GrantsOnResource(ctx, resourceID)
}

// LinkParams describes the link share policy a caller wants. Password is
// plaintext here and only ever stored as a bcrypt hash; it is meaningful
// only in restricted mode.
type LinkParams struct {
	Mode           models.LinkShareMode
	Role           models.Role
	Password       string
	ExpiresAt      *time.Time
	MaxAccessCount *int64
}

func (p LinkParams) validate() error {
	if p.Mode != models.LinkOpen && p.Mode != models.LinkRestricted {
		return fmt.Errorf("invalid link mode %q: %w", p.Mode, models.ErrConflict)
	}
	if !p.Role.Valid() || p.Role == models.RoleOwner {
		return fmt.Errorf("invalid link role %q: %w", p.Role, models.ErrConflict)
	}
	if p.Mode == models.LinkOpen && p.Password != "" {
		return fmt.Errorf("open links cannot carry a password: %w", models.ErrConflict)
	}
	return nil
}

// CreateLink enables link sharing on the resource with a fresh token.
func (s *ShareService) CreateLink(ctx context.Context, actorID, resourceID primitive.ObjectID, resourceType models.ResourceType, params LinkParams) (*models.LinkSharePolicy, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, actorID, resourceID, resourceType); err != nil {
		return nil, err
	}

	now := time.Now()
	policy := &models.LinkSharePolicy{
		Mode:           params.Mode,
		Role:           params.Role,
		ExpiresAt:      params.ExpiresAt,
		MaxAccessCount: params.MaxAccessCount,
		Token:          uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash link password: %w", err)
		}
		policy.PasswordHash = hash
	}

	if err := s.store.SetLinkShare(ctx, resourceType, resourceID, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// UpdateLink changes mode, role, password or limits of an existing link.
// The token and access count survive the update.
func (s *ShareService) UpdateLink(ctx context.Context, actorID, resourceID primitive.ObjectID, resourceType models.ResourceType, params LinkParams) (*models.LinkSharePolicy, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, actorID, resourceID, resourceType); err != nil {
		return nil, err
	}

	policy, err := s.linkPolicy(ctx, resourceID, resourceType)
	if err != nil {
		return nil, err
	}

	policy.Mode = params.Mode
	policy.Role = params.Role
	policy.ExpiresAt = params.ExpiresAt
	policy.MaxAccessCount = params.MaxAccessCount
	policy.UpdatedAt = time.Now()
	if params.Mode == models.LinkOpen {
		policy.PasswordHash = nil
	}
	if params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash link password: %w", err)
		}
		policy.PasswordHash = hash
	}

	if err := s.store.SetLinkShare(ctx, resourceType, resourceID, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// RevokeLink disables link sharing entirely; the token stops working at once.
func (s *ShareService) RevokeLink(ctx context.Context, actorID, resourceID primitive.ObjectID, resourceType models.ResourceType) error {
	if err := s.requireOwner(ctx, actorID, resourceID, resourceType); err != nil {
		return err
	}
	if _, err := s.linkPolicy(ctx, resourceID, resourceType); err != nil {
		return err
	}
	return s.store.SetLinkShare(ctx, resourceType, resourceID, nil)
}

// RotateLinkToken issues a fresh token. The old token is invalid the moment
// this returns; everything else about the policy is kept.
func (s *ShareService) RotateLinkToken(ctx context.Context, actorID, resourceID primitive.ObjectID, resourceType models.ResourceType) (*models.LinkSharePolicy, error) {
	if err := s.requireOwner(ctx, actorID, resourceID, resourceType); err != nil {
		return nil, err
	}
	policy, err := s.linkPolicy(ctx, resourceID, resourceType)
	if err != nil {
		return nil, err
	}
	policy.Token = uuid.NewString()
	policy.UpdatedAt = time.Now()
	if err := s.store.SetLinkShare(ctx, resourceType, resourceID, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// RecordLinkAccess bills one access against the policy that issued the
// token, walking up the ancestor chain to find it. Call it when the shared
// resource is actually consumed, never on a bare authorization check.
func (s *ShareService) RecordLinkAccess(ctx context.Context, resourceID primitive.ObjectID, resourceType models.ResourceType, token string) error {
	if token == "" {
		return fmt.Errorf("link access: %w", models.ErrForbidden)
	}

	chain, err := s.permissionService.resolveChain(ctx, resourceID, resourceType)
	if err != nil {
		return fmt.Errorf("link access: %w", models.ErrForbidden)
	}
	for _, link := range chain.policies {
		if link.policy.Token == token && link.policy.Usable(time.Now()) {
			return s.store.IncrementLinkAccess(ctx, link.resourceType, link.resourceID, token)
		}
	}
	return fmt.Errorf("link access: %w", models.ErrForbidden)
}

func (s *ShareService) requireOwner(ctx context.Context, actorID, resourceID primitive.ObjectID, resourceType models.ResourceType) error {
	ok, err := s.permissionService.Authorize(ctx, AccessRequest{ActorID: &actorID}, resourceID, resourceType, models.RoleOwner)
	if err != nil {
		return fmt.Errorf("permission check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("only the owner may manage sharing: %w", models.ErrForbidden)
	}
	return nil
}

func (s *ShareService) linkPolicy(ctx context.Context, resourceID primitive.ObjectID, resourceType models.ResourceType) (*models.LinkSharePolicy, error) {
	var policy *models.LinkSharePolicy
	if resourceType == models.ResourceFolder {
		folder, err := s.store.FolderByID(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		policy = folder.LinkShare
	} else {
		file, err := s.store.FileByID(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		policy = file.LinkShare
	}
	if policy == nil {
		return nil, fmt.Errorf("link share: %w", models.ErrNotFound)
	}
	return policy, nil
}

func (s *ShareService) resourceName(ctx context.Context, resourceID primitive.ObjectID, resourceType models.ResourceType) string {
	if resourceType == models.ResourceFolder {
		if folder, err := s.store.FolderByID(ctx, resourceID); err == nil {
			return folder.Name
		}
		return ""
	}
	if file, err := s.store.FileByID(ctx, resourceID); err == nil {
		return file.Name
	}
	return ""
}
