package controllers

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/services"
	"github.com/fyerfyer/fyer-drive-sub000/utils"
)

type BatchController struct {
	batchService *services.BatchService
}

func NewBatchController(batchService *services.BatchService) *BatchController {
	return &BatchController{batchService: batchService}
}

type BatchItemRequest struct {
	ID   string `json:"id" binding:"required"`
	Type string `json:"type" binding:"required"`
}

type BatchRequest struct {
	Items []BatchItemRequest `json:"items" binding:"required,min=1,max=100"`
}

type BatchMoveRequest struct {
	Items         []BatchItemRequest `json:"items" binding:"required,min=1,max=100"`
	DestinationID *string            `json:"destination_id,omitempty"`
}

type BatchStarRequest struct {
	Items   []BatchItemRequest `json:"items" binding:"required,min=1,max=100"`
	Starred bool               `json:"starred"`
}

func parseBatchItems(c *gin.Context, items []BatchItemRequest) ([]models.BatchItem, bool) {
	parsed := make([]models.BatchItem, 0, len(items))
	for _, item := range items {
		id, err := primitive.ObjectIDFromHex(item.ID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid item ID", item.ID)
			return nil, false
		}
		itemType := models.ResourceType(item.Type)
		if !itemType.Valid() {
			utils.BadRequestResponse(c, "Invalid item type", item.Type)
			return nil, false
		}
		parsed = append(parsed, models.BatchItem{ID: id, Type: itemType})
	}
	return parsed, true
}

// BatchTrash moves the items to trash in one atomic operation.
func (bc *BatchController) BatchTrash(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	var request BatchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	items, ok := parseBatchItems(c, request.Items)
	if !ok {
		return
	}

	result, err := bc.batchService.BatchTrash(c.Request.Context(), actorID, items)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Batch trash completed", result)
}

// BatchRestore takes the items out of trash.
func (bc *BatchController) BatchRestore(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	var request BatchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	items, ok := parseBatchItems(c, request.Items)
	if !ok {
		return
	}

	result, err := bc.batchService.BatchRestore(c.Request.Context(), actorID, items)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Batch restore completed", result)
}

// BatchDelete permanently deletes trashed items.
func (bc *BatchController) BatchDelete(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	var request BatchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	items, ok := parseBatchItems(c, request.Items)
	if !ok {
		return
	}

	result, err := bc.batchService.BatchDelete(c.Request.Context(), actorID, items)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Batch delete completed", result)
}

// BatchMove reparents the items under a common destination folder, or to
// the root level when no destination is given.
func (bc *BatchController) BatchMove(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	var request BatchMoveRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	items, ok := parseBatchItems(c, request.Items)
	if !ok {
		return
	}

	var destinationID *primitive.ObjectID
	if request.DestinationID != nil {
		id, err := primitive.ObjectIDFromHex(*request.DestinationID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid destination ID", err.Error())
			return
		}
		destinationID = &id
	}

	result, err := bc.batchService.BatchMove(c.Request.Context(), actorID, items, destinationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Batch move completed", result)
}

// BatchStar sets or clears the star flag across the items.
func (bc *BatchController) BatchStar(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	var request BatchStarRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	items, ok := parseBatchItems(c, request.Items)
	if !ok {
		return
	}

	result, err := bc.batchService.BatchStar(c.Request.Context(), actorID, items, request.Starred)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Batch star completed", result)
}

// GetTrashItems lists the caller's trash, one entry per trashed subtree.
func (bc *BatchController) GetTrashItems(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	items, err := bc.batchService.GetTrashItems(c.Request.Context(), actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Trash items retrieved", items)
}

func (bc *BatchController) singleItem(c *gin.Context) (primitive.ObjectID, models.BatchItem, bool) {
	actorID, ok := requireActor(c)
	if !ok {
		return primitive.NilObjectID, models.BatchItem{}, false
	}
	itemType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return primitive.NilObjectID, models.BatchItem{}, false
	}
	id, ok := parseObjectIDParam(c, "id")
	if !ok {
		return primitive.NilObjectID, models.BatchItem{}, false
	}
	return actorID, models.BatchItem{ID: id, Type: itemType}, true
}

// TrashItem trashes a single resource.
func (bc *BatchController) TrashItem(c *gin.Context) {
	actorID, item, ok := bc.singleItem(c)
	if !ok {
		return
	}
	if err := bc.batchService.Trash(c.Request.Context(), actorID, item); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Item moved to trash", nil)
}

// RestoreItem restores a single resource from trash.
func (bc *BatchController) RestoreItem(c *gin.Context) {
	actorID, item, ok := bc.singleItem(c)
	if !ok {
		return
	}
	if err := bc.batchService.Restore(c.Request.Context(), actorID, item); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Item restored", nil)
}

// DeleteItem permanently deletes a single trashed resource.
func (bc *BatchController) DeleteItem(c *gin.Context) {
	actorID, item, ok := bc.singleItem(c)
	if !ok {
		return
	}
	if err := bc.batchService.Delete(c.Request.Context(), actorID, item); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Item permanently deleted", nil)
}

type MoveItemRequest struct {
	DestinationID *string `json:"destination_id,omitempty"`
}

// MoveItem moves a single resource.
func (bc *BatchController) MoveItem(c *gin.Context) {
	actorID, item, ok := bc.singleItem(c)
	if !ok {
		return
	}

	var request MoveItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	var destinationID *primitive.ObjectID
	if request.DestinationID != nil {
		id, err := primitive.ObjectIDFromHex(*request.DestinationID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid destination ID", err.Error())
			return
		}
		destinationID = &id
	}

	if err := bc.batchService.Move(c.Request.Context(), actorID, item, destinationID); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Item moved", nil)
}

type StarItemRequest struct {
	Starred bool `json:"starred"`
}

// StarItem sets or clears the star flag on a single resource.
func (bc *BatchController) StarItem(c *gin.Context) {
	actorID, item, ok := bc.singleItem(c)
	if !ok {
		return
	}

	var request StarItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if err := bc.batchService.Star(c.Request.Context(), actorID, item, request.Starred); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Star flag updated", nil)
}
