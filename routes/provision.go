package routes

import (
	"net/http"

	"multitenant-rag-platform/internal/database"
	"multitenant-rag-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SetupProvisionRoutes registers explicit tenant provisioning. Ingestion
// provisions lazily, so this endpoint exists for preparing a tenant before
// its first upload.
func SetupProvisionRoutes(router *gin.Engine, provisioner *database.Provisioner) {
	api := router.Group("/api")

	api.POST("/tenants/:tenantID/provision", func(c *gin.Context) {
		tenantID := c.Param("tenantID")

		var body struct {
			AgentID string `json:"agent_id"`
		}
		// Body is optional; a fresh agent id is minted when absent
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
				return
			}
		}
		if body.AgentID == "" {
			body.AgentID = uuid.NewString()
		}

		c.Set("tenant_id", tenantID)

		if err := provisioner.EnsureTenant(c.Request.Context(), tenantID, body.AgentID); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"tenant_id": tenantID,
			"agent_id":  body.AgentID,
			"message":   "Tenant provisioned",
		})
	})
}
