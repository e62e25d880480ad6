package routes

import (
	"net/http"

	"multitenant-rag-platform/models"
	"multitenant-rag-platform/services"
	"multitenant-rag-platform/utils"

	"github.com/gin-gonic/gin"
)

// SetupQueryRoutes registers the question answering endpoint
func SetupQueryRoutes(router *gin.Engine, querySvc *services.QueryService) {
	api := router.Group("/api")

	api.POST("/query", func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "tenant_id, agent_id and query are required", gin.H{"error": err.Error()})
			return
		}

		// Expose the tenant to the tracing middleware
		c.Set("tenant_id", req.TenantID)
		c.Set("agent_id", req.AgentID)

		answer, err := querySvc.Answer(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"answer": answer})
	})
}
