// Command gen-docs writes the OpenAPI document of the panel API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"grimm.is/hearth/internal/api"
	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/panel"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
)

func main() {
	out := flag.String("o", "docs/openapi.yaml", "Output file")
	flag.Parse()

	if err := run(*out); err != nil {
		fmt.Fprintf(os.Stderr, "gen-docs: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully generated %s\n", *out)
}

func run(path string) error {
	// The registry is built by the panel service, which needs a database.
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := panel.New(panel.Options{DB: db, Settings: settings.NewFromMap(nil)})
	doc := api.OpenAPIDocument(svc.Registry(), brand.Version)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode YAML: %w", err)
	}
	return enc.Close()
}
