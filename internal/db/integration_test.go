//go:build integration

package db

import (
	"fmt"
	"os"
	"strconv"
	"testing"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/config"
)

// integrationConfig reads MySQL settings from the environment. Tests are
// skipped when IRIS_TEST_MYSQL_HOST is unset.
func integrationConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	host := os.Getenv("IRIS_TEST_MYSQL_HOST")
	if host == "" {
		t.Skip("IRIS_TEST_MYSQL_HOST not set")
	}
	port := 3306
	if p := os.Getenv("IRIS_TEST_MYSQL_PORT"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil {
			t.Fatalf("bad IRIS_TEST_MYSQL_PORT: %v", err)
		}
		port = v
	}
	user := os.Getenv("IRIS_TEST_MYSQL_USER")
	if user == "" {
		user = "root"
	}
	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     user,
		Password: os.Getenv("IRIS_TEST_MYSQL_PASSWORD"),
	}
}

func TestIntegration_CreateMigrateDrop(t *testing.T) {
	cfg := integrationConfig(t)

	adminDB, err := ConnectAdmin(cfg)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}

	name := fmt.Sprintf("iris_test_%d", os.Getpid())
	if err := CreateDatabase(adminDB, name); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	t.Cleanup(func() {
		if err := DropDatabase(adminDB, name); err != nil {
			t.Errorf("DropDatabase: %v", err)
		}
	})

	cfg.Database = name
	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	// Running migrations twice must be safe.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}

	for _, model := range AllModels() {
		if !db.Migrator().HasTable(model) {
			t.Errorf("missing table for %T", model)
		}
	}
}

func TestIntegration_SeedDistricts(t *testing.T) {
	cfg := integrationConfig(t)

	adminDB, err := ConnectAdmin(cfg)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	name := fmt.Sprintf("iris_seed_test_%d", os.Getpid())
	if err := CreateDatabase(adminDB, name); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	t.Cleanup(func() { DropDatabase(adminDB, name) })

	cfg.Database = name
	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	names := []string{"Ciutat Vella", "Eixample", "Sants-Montjuic"}
	if err := SeedDistricts(db, names); err != nil {
		t.Fatalf("SeedDistricts: %v", err)
	}
	// Re-seeding must upsert, not duplicate.
	if err := SeedDistricts(db, names); err != nil {
		t.Fatalf("second SeedDistricts: %v", err)
	}
}
