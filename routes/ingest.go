package routes

import (
	"net/http"

	"multitenant-rag-platform/internal/database"
	"multitenant-rag-platform/internal/queue"
	"multitenant-rag-platform/models"
	"multitenant-rag-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// SetupIngestRoutes registers storage event intake and document status lookup
func SetupIngestRoutes(router *gin.Engine, queueClient *asynq.Client, statusStore *database.StatusStore) {
	api := router.Group("/api")

	// Storage object-created notifications land here, one task per record
	api.POST("/events/storage", func(c *gin.Context) {
		var event models.StorageEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			utils.RespondWithBadRequest(c, "Invalid storage event", gin.H{"error": err.Error()})
			return
		}
		if len(event.Records) == 0 {
			utils.RespondWithBadRequest(c, "Storage event has no records", nil)
			return
		}

		taskIDs := make([]string, 0, len(event.Records))
		for _, record := range event.Records {
			bucket := record.S3.Bucket.Name
			key := record.S3.Object.Key
			if bucket == "" || key == "" {
				utils.RespondWithBadRequest(c, "Storage record is missing bucket or key", nil)
				return
			}

			task, err := queue.NewIngestTask(bucket, key)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to create ingestion task", nil)
				return
			}

			info, err := queueClient.Enqueue(task)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to enqueue ingestion task", nil)
				return
			}
			taskIDs = append(taskIDs, info.ID)
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message":  "Ingestion accepted",
			"records":  len(event.Records),
			"task_ids": taskIDs,
		})
	})

	api.GET("/documents/:documentID/status", func(c *gin.Context) {
		documentID := c.Param("documentID")
		if _, err := uuid.Parse(documentID); err != nil {
			utils.RespondWithBadRequest(c, "document id must be a UUID", nil)
			return
		}

		status, history, err := statusStore.Get(c.Request.Context(), documentID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load document status", nil)
			return
		}
		if status == nil {
			utils.RespondWithError(c, http.StatusNotFound,
				"document_not_found",
				"No status recorded for document",
				nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  status,
			"history": history,
		})
	})
}
