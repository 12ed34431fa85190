package cmd

import (
	"context"
)

// RunMigrate applies pending schema migrations and seeds missing settings.
// With force, settings blocks of the config overwrite stored values.
func RunMigrate(configFile string, force bool) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, configFile, force)
	if err != nil {
		return err
	}
	defer rt.Close()

	version, err := rt.db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	Printer.Printf("Database: %s\n", rt.cfg.Database.Path)
	Printer.Printf("Schema version: %d\n", version)
	Printer.Printf("Settings: %d\n", len(rt.settings.All()))
	return nil
}
