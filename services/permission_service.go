package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/store"
)

// PermissionService resolves the effective access an actor has over a
// resource: ownership, direct grants, grants inherited through the ancestor
// chain, and link share policies on the resource or any ancestor.
type PermissionService struct {
	store store.Store
}

// AccessRequest carries the identity material for one authorization check.
// A nil ActorID means anonymous link access; Token and Password come from
// the share link the caller followed, if any.
type AccessRequest struct {
	ActorID  *primitive.ObjectID
	Token    string
	Password string
}

func NewPermissionService(st store.Store) *PermissionService {
	return &PermissionService{store: st}
}

// Authorize reports whether the request satisfies requiredRole on the
// resource. It is read-only: link access counts are not touched here, only
// when the resource is actually consumed (see ShareService.RecordLinkAccess).
//
// A missing resource and a bad token both deny with a nil error, so callers
// cannot distinguish existence from access.
func (s *PermissionService) Authorize(ctx context.Context, req AccessRequest, resourceID primitive.ObjectID, resourceType models.ResourceType, requiredRole models.Role) (bool, error) {
	if !requiredRole.Valid() || !resourceType.Valid() {
		return false, nil
	}

	chain, err := s.resolveChain(ctx, resourceID, resourceType)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	// Owner satisfies every role and never expires.
	if req.ActorID != nil && *req.ActorID == chain.ownerID {
		return true, nil
	}

	now := time.Now()

	if req.Token != "" {
		// Tokens belong to the resource that issued them: a match anywhere
		// in the chain authorizes, an ancestor's policy is never addressed
		// by a descendant's token.
		for _, link := range chain.policies {
			if s.tokenMatches(link.policy, req, requiredRole, now) {
				return true, nil
			}
		}
	}

	// An open "anyone" link on the resource or any ancestor needs no token.
	for _, link := range chain.policies {
		if link.policy.AllowsAnonymous(now) && link.policy.Role.Satisfies(requiredRole) {
			return true, nil
		}
	}

	// The ACL requires a known actor; anonymous callers stop here.
	if req.ActorID == nil {
		return false, nil
	}

	grants, err := s.store.GrantsFor(ctx, *req.ActorID, chain.resourceIDs)
	if err != nil {
		return false, fmt.Errorf("grant lookup failed: %w", err)
	}
	for _, grant := range grants {
		if !grant.Expired(now) && grant.Role.Satisfies(requiredRole) {
			return true, nil
		}
	}

	return false, nil
}

func (s *PermissionService) tokenMatches(policy *models.LinkSharePolicy, req AccessRequest, requiredRole models.Role, now time.Time) bool {
	if !policy.Usable(now) || policy.Token != req.Token {
		return false
	}
	if !policy.Role.Satisfies(requiredRole) {
		return false
	}
	if len(policy.PasswordHash) > 0 {
		if bcrypt.CompareHashAndPassword(policy.PasswordHash, []byte(req.Password)) != nil {
			return false
		}
	}
	return true
}

// policyLink ties a link policy to the chain resource that carries it.
type policyLink struct {
	resourceID   primitive.ObjectID
	resourceType models.ResourceType
	policy       *models.LinkSharePolicy
}

// permissionChain is everything the resolver needs about a resource:
// its owner, the ids whose grants apply to it, and the link policies along
// the inheritance chain.
type permissionChain struct {
	ownerID     primitive.ObjectID
	resourceIDs []primitive.ObjectID
	policies    []policyLink
}

// resolveChain loads the resource and its ancestor folders. For a file the
// chain is the file itself plus its parent folder and that folder's
// ancestors; files carry no independent ancestors array.
func (s *PermissionService) resolveChain(ctx context.Context, resourceID primitive.ObjectID, resourceType models.ResourceType) (*permissionChain, error) {
	chain := &permissionChain{}

	var folderIDs []primitive.ObjectID
	switch resourceType {
	case models.ResourceFile:
		file, err := s.store.FileByID(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		chain.ownerID = file.OwnerID
		chain.resourceIDs = append(chain.resourceIDs, file.ID)
		if file.LinkShare != nil {
			chain.policies = append(chain.policies, policyLink{file.ID, models.ResourceFile, file.LinkShare})
		}
		if file.FolderID != nil {
			parent, err := s.store.FolderByID(ctx, *file.FolderID)
			if err != nil {
				return nil, err
			}
			folderIDs = parent.PermissionChain()
		}
	case models.ResourceFolder:
		folder, err := s.store.FolderByID(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		chain.ownerID = folder.OwnerID
		folderIDs = folder.PermissionChain()
	}

	if len(folderIDs) == 0 {
		return chain, nil
	}

	folders, err := s.store.FoldersByIDs(ctx, folderIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[primitive.ObjectID]models.Folder, len(folders))
	for _, folder := range folders {
		byID[folder.ID] = folder
	}
	// Keep chain order: resource first, then nearest ancestor outward.
	for _, id := range folderIDs {
		folder, ok := byID[id]
		if !ok {
			continue
		}
		chain.resourceIDs = append(chain.resourceIDs, folder.ID)
		if folder.LinkShare != nil {
			chain.policies = append(chain.policies, policyLink{folder.ID, models.ResourceFolder, folder.LinkShare})
		}
	}
	return chain, nil
}
