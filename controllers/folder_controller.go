package controllers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/services"
	"github.com/fyerfyer/fyer-drive-sub000/utils"
)

// downloadURLTTL bounds how long a signed download URL stays valid.
const downloadURLTTL = 15 * time.Minute

// DownloadURLSigner mints short-lived URLs for object bytes held in the
// private bucket.
type DownloadURLSigner interface {
	GetDownloadURL(key string, duration time.Duration) (string, error)
}

type FolderController struct {
	folderService *services.FolderService
	downloads     DownloadURLSigner
}

func NewFolderController(folderService *services.FolderService, downloads DownloadURLSigner) *FolderController {
	return &FolderController{folderService: folderService, downloads: downloads}
}

type CreateFolderRequest struct {
	Name     string  `json:"name" binding:"required"`
	ParentID *string `json:"parent_id,omitempty"`
}

// CreateFolder creates a folder, at root level or under a parent.
func (fc *FolderController) CreateFolder(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	var request CreateFolderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	if err := utils.ValidateFolderName(request.Name); err != nil {
		utils.BadRequestResponse(c, "Invalid folder name", err.Error())
		return
	}

	var parentID *primitive.ObjectID
	if request.ParentID != nil {
		id, err := primitive.ObjectIDFromHex(*request.ParentID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid parent ID", err.Error())
			return
		}
		parentID = &id
	}

	folder, err := fc.folderService.CreateFolder(c.Request.Context(), actorID, request.Name, parentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Folder created", folder)
}

type CreateFileRequest struct {
	Name     string  `json:"name" binding:"required"`
	Size     int64   `json:"size" binding:"min=0"`
	MimeType string  `json:"mime_type,omitempty"`
	SHA1     string  `json:"sha1" binding:"required"`
	FolderID *string `json:"folder_id,omitempty"`
}

// CreateFile registers a file record against already-uploaded bytes.
func (fc *FolderController) CreateFile(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	var request CreateFileRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	if err := utils.ValidateFileName(request.Name); err != nil {
		utils.BadRequestResponse(c, "Invalid file name", err.Error())
		return
	}

	var folderID *primitive.ObjectID
	if request.FolderID != nil {
		id, err := primitive.ObjectIDFromHex(*request.FolderID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid folder ID", err.Error())
			return
		}
		folderID = &id
	}

	file, err := fc.folderService.CreateFile(c.Request.Context(), actorID, request.Name, request.Size, request.MimeType, request.SHA1, folderID)
	if err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			utils.InsufficientStorageResponse(c, "Storage quota exceeded")
			return
		}
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "File created", file)
}

// DownloadFile resolves access to a file and returns a signed URL for its
// bytes. Link visitors authenticate with a token (and password) in the
// query string instead of a bearer token.
func (fc *FolderController) DownloadFile(c *gin.Context) {
	resourceType, ok := parseResourceTypeParam(c, "type")
	if !ok {
		return
	}
	if resourceType != models.ResourceFile {
		utils.BadRequestResponse(c, "Only files can be downloaded", nil)
		return
	}
	fileID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}

	req := services.AccessRequest{
		ActorID:  optionalActor(c),
		Token:    c.Query("token"),
		Password: c.Query("password"),
	}
	file, err := fc.folderService.FileDownloadInfo(c.Request.Context(), req, fileID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	url, err := fc.downloads.GetDownloadURL(file.SHA1Hash, downloadURLTTL)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to generate download URL", err.Error())
		return
	}
	utils.SuccessResponse(c, "Download URL generated", gin.H{
		"url":       url,
		"name":      file.Name,
		"mime_type": file.MimeType,
		"size":      file.Size,
	})
}
