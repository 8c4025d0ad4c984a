package db

import (
	"strings"
	"testing"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/config"
	"gorm.io/gorm"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "default local",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, User: "root", Database: "iris"},
			want: "root@tcp(127.0.0.1:3306)/iris?parseTime=true&charset=utf8mb4",
		},
		{
			name: "with password",
			cfg:  config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, User: "iris", Password: "secret", Database: "iris_prod"},
			want: "iris:secret@tcp(10.0.0.5:3307)/iris_prod?parseTime=true&charset=utf8mb4",
		},
		{
			name: "production host",
			cfg:  config.DatabaseConfig{Host: "mysql.vpc.internal", Port: 3306, User: "root", Database: "iris"},
			want: "root@tcp(mysql.vpc.internal:3306)/iris?parseTime=true&charset=utf8mb4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDSN_ParseTimeFlag(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "localhost", Port: 3306, User: "root", Database: "test"})
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", dsn)
	}
}

func TestConnect_RequiresServer(t *testing.T) {
	// Connect requires a running MySQL server; verify the function signature
	// compiles and returns (*gorm.DB, error).
	var fn func(config.DatabaseConfig) (*gorm.DB, error) = Connect
	if fn == nil {
		t.Fatal("Connect function is nil")
	}
}

func TestAllModels_Count(t *testing.T) {
	models := AllModels()
	if len(models) != 17 {
		t.Errorf("AllModels() returned %d models, want 17", len(models))
	}
}

func TestConnect_Error(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := Connect(config.DatabaseConfig{Host: "127.0.0.1", Port: 1, User: "root", Database: "nonexistent"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect to")
	}
}

func TestConnectAdmin_Error(t *testing.T) {
	_, err := ConnectAdmin(config.DatabaseConfig{Host: "127.0.0.1", Port: 1, User: "root"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: admin connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: admin connect to")
	}
}
