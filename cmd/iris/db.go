package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/config"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/db"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the IRIS database",
		Long:  "Creates the MySQL database, migrates all tables and seeds the districts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s\n", configPath)

	// Connect without a database selected so CREATE DATABASE works.
	adminDB, err := db.ConnectAdmin(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to MySQL at %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
	}
	fmt.Fprintf(out, "Connected to MySQL at %s:%d\n", cfg.Database.Host, cfg.Database.Port)

	if err := db.CreateDatabase(adminDB, cfg.Database.Database); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Database)

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Database.Database, err)
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedDistricts(gormDB, db.DefaultDistricts); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d districts\n", len(db.DefaultDistricts))

	fmt.Fprintln(out, "\nIRIS database initialized successfully.")
	return nil
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the IRIS database schema",
		Long:  "Creates or updates all tables on an existing database without touching data.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	return cmd
}

func newDBSeedCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the district catalog",
		Long:  "Upserts the administrative districts. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := db.SeedDistricts(gormDB, db.DefaultDistricts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d districts\n", len(db.DefaultDistricts))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	return cmd
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		dbName     string
		yes        bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the IRIS database",
		Long: `Drops the IRIS database and optionally re-creates it from config.

By default, reads the config file to determine the database name, drops it,
then re-initializes (migrate + seed districts). With --database, drops the
named database without re-init.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, dbName, yes || force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().StringVar(&dbName, "database", "", "explicit database name (skip re-init)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	cmd.Flags().BoolVar(&force, "force", false, "skip confirmation prompt (alias for --yes)")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath, dbName string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	var cfg *config.Config
	reinit := false

	if dbName == "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dbName = cfg.Database.Database
		reinit = true
		fmt.Fprintf(out, "Loaded config from %s\n", configPath)
	}

	if !skipConfirm {
		if !confirmReset(cmd, dbName) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	dbCfg := config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, User: "root"}
	if cfg != nil {
		dbCfg = cfg.Database
	}

	adminDB, err := db.ConnectAdmin(dbCfg)
	if err != nil {
		return fmt.Errorf("connect to MySQL at %s:%d: %w", dbCfg.Host, dbCfg.Port, err)
	}
	fmt.Fprintf(out, "Connected to MySQL at %s:%d\n", dbCfg.Host, dbCfg.Port)

	if err := db.DropDatabase(adminDB, dbName); err != nil {
		return err
	}
	fmt.Fprintf(out, "Dropped database %s\n", dbName)

	if !reinit {
		fmt.Fprintln(out, "\nDatabase dropped successfully.")
		return nil
	}

	if err := db.CreateDatabase(adminDB, dbName); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s re-created\n", dbName)

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", dbName, err)
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedDistricts(gormDB, db.DefaultDistricts); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d districts\n", len(db.DefaultDistricts))

	fmt.Fprintln(out, "\nIRIS database reset and re-initialized successfully.")
	return nil
}

func confirmReset(cmd *cobra.Command, dbName string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all data in database %q.\n", dbName)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)

	// Only prompt on a real terminal. Scripts must pass --yes explicitly.
	if f, ok := in.(*os.File); ok && f == os.Stdin && !term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(out, "Refusing to prompt without a terminal. Use --yes to confirm.")
		return false
	}

	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
