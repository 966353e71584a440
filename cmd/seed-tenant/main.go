package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/datamindworks/stocktrail_backend/config"
	"github.com/datamindworks/stocktrail_backend/models"
)

// Provisioning tool: creates a tenant and prints its id.
func main() {
	name := flag.String("name", "", "Required: tenant name")
	migrate := flag.Bool("migrate", false, "Run table migration first")
	flag.Parse()

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		os.Exit(1)
	}

	ctx := context.Background()
	db := config.ConnectDatabaseWithRetry()

	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	tenant, err := models.CreateTenant(ctx, db, &models.NewTenant{Name: strings.TrimSpace(*name)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create tenant failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("tenant created: id=%s name=%s\n", tenant.ID, tenant.Name)
}
