package controllers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/services"
	"github.com/fyerfyer/fyer-drive-sub000/utils"
)

type ShareController struct {
	shareService      *services.ShareService
	permissionService *services.PermissionService
}

func NewShareController(shareService *services.ShareService, permissionService *services.PermissionService) *ShareController {
	return &ShareController{
		shareService:      shareService,
		permissionService: permissionService,
	}
}

type ShareRequest struct {
	GranteeID string     `json:"grantee_id" binding:"required"`
	Role      string     `json:"role" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ShareResource grants a user a role on a file or folder.
func (sc *ShareController) ShareResource(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	resourceType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return
	}
	resourceID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}

	var request ShareRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	granteeID, err := primitive.ObjectIDFromHex(request.GranteeID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid grantee ID", err.Error())
		return
	}

	grant, err := sc.shareService.ShareResource(c.Request.Context(), actorID, resourceID, resourceType, granteeID, models.Role(request.Role), request.ExpiresAt)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Resource shared successfully", grant)
}

// RevokeGrant removes a user's grant on a resource.
func (sc *ShareController) RevokeGrant(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	resourceType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return
	}
	resourceID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}
	granteeID, err := primitive.ObjectIDFromHex(c.Param("granteeId"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid grantee ID", err.Error())
		return
	}

	if err := sc.shareService.RevokeGrant(c.Request.Context(), actorID, resourceID, resourceType, granteeID); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Grant revoked", nil)
}

// ListGrants returns the direct grants on a resource.
func (sc *ShareController) ListGrants(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	resourceType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return
	}
	resourceID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}

	grants, err := sc.shareService.GrantsOn(c.Request.Context(), actorID, resourceID, resourceType)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Grants retrieved", grants)
}

type LinkRequest struct {
	Mode           string     `json:"mode" binding:"required"`
	Role           string     `json:"role" binding:"required"`
	Password       string     `json:"password,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	MaxAccessCount *int64     `json:"max_access_count,omitempty"`
}

func (r LinkRequest) params() services.LinkParams {
	return services.LinkParams{
		Mode:           models.LinkShareMode(r.Mode),
		Role:           models.Role(r.Role),
		Password:       r.Password,
		ExpiresAt:      r.ExpiresAt,
		MaxAccessCount: r.MaxAccessCount,
	}
}

// CreateLink enables link sharing on a resource.
func (sc *ShareController) CreateLink(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	resourceType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return
	}
	resourceID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}

	var request LinkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	policy, err := sc.shareService.CreateLink(c.Request.Context(), actorID, resourceID, resourceType, request.params())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Share link created", policy)
}

// UpdateLink changes the link policy without rotating its token.
func (sc *ShareController) UpdateLink(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	resourceType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return
	}
	resourceID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}

	var request LinkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	policy, err := sc.shareService.UpdateLink(c.Request.Context(), actorID, resourceID, resourceType, request.params())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Share link updated", policy)
}

// RevokeLink disables link sharing on a resource.
func (sc *ShareController) RevokeLink(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	resourceType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return
	}
	resourceID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}

	if err := sc.shareService.RevokeLink(c.Request.Context(), actorID, resourceID, resourceType); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Share link revoked", nil)
}

// RotateLinkToken replaces the link token, invalidating the old URL.
func (sc *ShareController) RotateLinkToken(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	resourceType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return
	}
	resourceID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}

	policy, err := sc.shareService.RotateLinkToken(c.Request.Context(), actorID, resourceID, resourceType)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Share link token rotated", policy)
}

type AccessRequestBody struct {
	Role     string `json:"role,omitempty"`
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// AccessResource resolves whether the caller may act on a resource,
// combining their identity (if any) with an optional share token and
// password. A denied or nonexistent resource gets the same 404 so callers
// cannot tell existence from access. Token-based access is counted here, when
// the resource is actually consumed.
func (sc *ShareController) AccessResource(c *gin.Context) {
	resourceType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return
	}
	resourceID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}

	var request AccessRequestBody
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	role := models.Role(request.Role)
	if request.Role == "" {
		role = models.RoleViewer
	}

	accessReq := services.AccessRequest{
		ActorID:  optionalActor(c),
		Token:    request.Token,
		Password: request.Password,
	}

	allowed, err := sc.permissionService.Authorize(c.Request.Context(), accessReq, resourceID, resourceType, role)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Access check failed", err.Error())
		return
	}
	if !allowed {
		utils.NotFoundResponse(c, "Resource not found")
		return
	}

	if request.Token != "" {
		if err := sc.shareService.RecordLinkAccess(c.Request.Context(), resourceID, resourceType, request.Token); err != nil {
			utils.LogWarning(fmt.Sprintf("failed to record link access on %s: %v", resourceID.Hex(), err))
		}
	}

	utils.SuccessResponse(c, "Access granted", gin.H{"role": string(role)})
}
