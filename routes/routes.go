package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/fyer-drive-sub000/controllers"
	"github.com/fyerfyer/fyer-drive-sub000/middleware"
	"github.com/fyerfyer/fyer-drive-sub000/services"
)

// ServiceContainer holds the wired services the routes need.
type ServiceContainer struct {
	JWTSecret           string
	PermissionService   *services.PermissionService
	FolderService       *services.FolderService
	ShareService        *services.ShareService
	BatchService        *services.BatchService
	NotificationService *services.NotificationService
	DownloadSigner      controllers.DownloadURLSigner
}

// SetupRoutes registers all API routes under the given group.
func SetupRoutes(api *gin.RouterGroup, container *ServiceContainer) {
	shareController := controllers.NewShareController(container.ShareService, container.PermissionService)
	batchController := controllers.NewBatchController(container.BatchService)
	folderController := controllers.NewFolderController(container.FolderService, container.DownloadSigner)
	notificationController := controllers.NewNotificationController(container.NotificationService)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(container.JWTSecret))
	{
		authed.POST("/folders", folderController.CreateFolder)
		authed.POST("/files", folderController.CreateFile)

		// Grants
		authed.POST("/resources/:type/:id/share", shareController.ShareResource)
		authed.GET("/resources/:type/:id/share", shareController.ListGrants)
		authed.DELETE("/resources/:type/:id/share/:granteeId", shareController.RevokeGrant)

		// Link share policies
		authed.POST("/resources/:type/:id/link", shareController.CreateLink)
		authed.PATCH("/resources/:type/:id/link", shareController.UpdateLink)
		authed.DELETE("/resources/:type/:id/link", shareController.RevokeLink)
		authed.POST("/resources/:type/:id/link/rotate", shareController.RotateLinkToken)

		// Single-resource tree mutations
		authed.POST("/resources/:type/:id/trash", batchController.TrashItem)
		authed.POST("/resources/:type/:id/restore", batchController.RestoreItem)
		authed.DELETE("/resources/:type/:id", batchController.DeleteItem)
		authed.POST("/resources/:type/:id/move", batchController.MoveItem)
		authed.POST("/resources/:type/:id/star", batchController.StarItem)

		// Batch tree mutations
		authed.POST("/batch/trash", batchController.BatchTrash)
		authed.POST("/batch/restore", batchController.BatchRestore)
		authed.POST("/batch/delete", batchController.BatchDelete)
		authed.POST("/batch/move", batchController.BatchMove)
		authed.POST("/batch/star", batchController.BatchStar)

		authed.GET("/trash", batchController.GetTrashItems)

		// Notifications
		authed.GET("/notifications", notificationController.ListNotifications)
		authed.POST("/notifications/:id/read", notificationController.MarkNotificationRead)
	}

	// Access resolution accepts anonymous callers carrying a share token.
	shared := api.Group("")
	shared.Use(middleware.OptionalAuthMiddleware(container.JWTSecret))
	{
		shared.POST("/resources/:type/:id/access", shareController.AccessResource)
		shared.GET("/resources/:type/:id/download", folderController.DownloadFile)
	}
}
