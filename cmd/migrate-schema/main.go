package main

import (
	"fmt"
	"os"

	"bitbucket.org/brokerlink/customs_backend/config"
	"bitbucket.org/brokerlink/customs_backend/models"
)

// migrate-schema runs the gorm auto-migration and exits. The service runs
// migrations on boot by default, but deployments that set SKIP_MIGRATIONS
// apply schema changes through this tool instead (e.g. as a release step).
func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	models.MigrateTable()
	fmt.Println("schema migration complete")
}
