package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"multitenant-rag-platform/internal/config"
	"multitenant-rag-platform/internal/database"
	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/utils"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run cmd/provision/provision.go <command> <tenant_id> [agent_id]")
		fmt.Println("Commands:")
		fmt.Println("  ensure  - Create the tenant schema, tables, indexes and default agent")
		fmt.Println("  verify  - Check that the tenant schema is fully provisioned")
		os.Exit(1)
	}

	command := os.Args[1]
	tenantID := os.Args[2]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.InitLogger(cfg)

	// Connect to Postgres
	pool, err := config.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	manager := database.NewTenantStoreManager(pool)
	provisioner := database.NewProvisioner(manager, cfg.AgentName, cfg.AgentDescription)

	ctx, cancel := utils.WithCustomTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch command {
	case "ensure":
		agentID := uuid.NewString()
		if len(os.Args) > 3 {
			agentID = os.Args[3]
		}

		if err := provisioner.EnsureTenant(ctx, tenantID, agentID); err != nil {
			log.Fatalf("Provisioning failed: %v", err)
		}
		fmt.Printf("Tenant %s provisioned with agent %s\n", tenantID, agentID)

	case "verify":
		ok, err := provisioner.VerifyTenant(ctx, tenantID)
		if err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		if !ok {
			log.Fatalf("Tenant %s is not fully provisioned", tenantID)
		}
		fmt.Printf("Tenant %s is fully provisioned\n", tenantID)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}
