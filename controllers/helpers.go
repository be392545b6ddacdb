package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/utils"
)

// requireActor pulls the authenticated user out of the gin context. It
// writes the 401 response itself when no user is present.
func requireActor(c *gin.Context) (primitive.ObjectID, bool) {
	value, exists := c.Get("userId")
	if !exists {
		utils.UnauthorizedResponse(c, "Authentication required")
		return primitive.NilObjectID, false
	}
	userID, ok := value.(primitive.ObjectID)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return primitive.NilObjectID, false
	}
	return userID, true
}

// optionalActor returns the authenticated user if one is present.
func optionalActor(c *gin.Context) *primitive.ObjectID {
	value, exists := c.Get("userId")
	if !exists {
		return nil
	}
	userID, ok := value.(primitive.ObjectID)
	if !ok {
		return nil
	}
	return &userID
}

func parseObjectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid resource ID", err.Error())
		return primitive.NilObjectID, false
	}
	return id, true
}

func parseResourceTypeParam(c *gin.Context, name string) (models.ResourceType, bool) {
	resourceType := models.ResourceType(c.Param(name))
	if !resourceType.Valid() {
		utils.BadRequestResponse(c, "Invalid resource type", nil)
		return "", false
	}
	return resourceType, true
}

// respondServiceError maps service sentinel errors onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.NotFoundResponse(c, "Resource not found")
	case errors.Is(err, models.ErrForbidden):
		utils.ForbiddenResponse(c, "Insufficient permissions")
	case errors.Is(err, models.ErrConflict):
		utils.ConflictResponse(c, "Operation conflicts with current state", err.Error())
	default:
		utils.InternalServerErrorResponse(c, "Operation failed", err.Error())
	}
}
