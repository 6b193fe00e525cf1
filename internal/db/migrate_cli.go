package db

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand. Output goes to w.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(w)
		return nil
	}

	// Open database connection without running schema initialization
	// (migrations will manage the schema)
	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	migrationsFS := MigrationsFS()

	switch action {
	case "up":
		if err := database.MigrateUp(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")
		return printVersion(w, database, migrationsFS)

	case "down":
		if err := database.MigrateDown(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Migration rolled back successfully")
		return printVersion(w, database, migrationsFS)

	case "status":
		return printStatus(w, database, migrationsFS)

	case "version":
		if len(args) < 2 {
			return fmt.Errorf("usage: dyno-server migrate version <version_number>")
		}
		target, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if err := database.MigrateTo(migrationsFS, uint(target)); err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Migrated to version %d successfully\n", target)
		return nil

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: dyno-server migrate force <version_number>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		fmt.Fprintf(w, "⚠️  Forcing migration version to %d (recovery only)\n", version)
		if err := database.MigrateForce(migrationsFS, version); err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Migration version forced to %d\n", version)
		return nil

	default:
		fmt.Fprintf(w, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func printVersion(w io.Writer, database *DB, migrationsFS fs.FS) error {
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

func printStatus(w io.Writer, database *DB, migrationsFS fs.FS) error {
	status, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "=== Migration Status ===")
	fmt.Fprintf(w, "Current version: %d\n", status.CurrentVersion)
	fmt.Fprintf(w, "Latest available: %d\n", status.LatestVersion)
	fmt.Fprintf(w, "Dirty: %v\n", status.Dirty)
	fmt.Fprintf(w, "Schema migrations table exists: %v\n", status.SchemaMigrationsExists)

	switch {
	case status.Dirty:
		fmt.Fprintln(w, "\n⚠️  WARNING: Database is in a dirty state!")
		fmt.Fprintln(w, "A migration failed mid-execution. Inspect the database, then run:")
		fmt.Fprintln(w, "  dyno-server migrate force <version>")
	case status.Pending() > 0:
		fmt.Fprintf(w, "\n⚠️  Database is %d version(s) behind. Run 'dyno-server migrate up' to update.\n", status.Pending())
	default:
		fmt.Fprintln(w, "\n✓ Database is up to date!")
	}
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprintln(w, "Database Migration Commands")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: dyno-server [-db path] migrate <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up              Apply all pending migrations")
	fmt.Fprintln(w, "  down            Rollback one migration")
	fmt.Fprintln(w, "  status          Show current migration status and version")
	fmt.Fprintln(w, "  version <N>     Migrate to specific version N")
	fmt.Fprintln(w, "  force <N>       Force migration version to N (recovery only)")
	fmt.Fprintln(w, "  help            Show this help message")
}
