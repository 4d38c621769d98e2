package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"roomsync.ai/internal/sim/catalogs"
)

func schemaCmd(args []string) {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	outPath := fs.String("out", "", "path to write the models.yaml JSON schema (default: stdout)")
	_ = fs.Parse(args)

	data, err := json.MarshalIndent(buildModelsSchema(), "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal schema:", err)
		os.Exit(1)
	}
	if *outPath == "" {
		_, _ = os.Stdout.Write(append(data, '\n'))
		return
	}
	if err := writeSchema(*outPath, data); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// writeSchema replaces outPath atomically so a half-written schema is never observed.
func writeSchema(outPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	tmp := outPath + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}

func buildModelsSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{}
	schema := reflector.Reflect(new(catalogs.File))
	schema.Title = "Model catalog"
	schema.Description = "Validates configs/models.yaml: actor models, their bounding boxes and animation clips."
	return schema
}
