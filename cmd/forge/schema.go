package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [FILE]",
	Short: "Print the project descriptor schema, or save it to FILE",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := "-"
		if len(args) == 1 {
			dest = args[0]
		}
		return writeSchema(dest)
	},
}

// descriptorSchema describes the on-disk project descriptor shape from
// spec.md §6, as a small JSON Schema-like document: it documents the
// keys forge actually reads, not a generic draft-07 validator.
var descriptorSchema = map[string]any{
	"$schema":     "https://json-schema.org/draft/2020-12/schema",
	"title":       "forge project descriptor",
	"type":        "object",
	"required":    []string{"configurations", "source_files", "version"},
	"properties": map[string]any{
		"version":        map[string]any{"type": "string", "pattern": `^\d+\.\d+\.\d+$`, "description": "MAJOR.MINOR.PATCH"},
		"source_files":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"resource_files": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"configurations": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"default":              map[string]any{"type": "boolean"},
					"target":               map[string]any{"enum": []string{"executable", "library", "sharedlibrary"}},
					"compiler":             map[string]any{"type": "string", "default": "c++"},
					"linker":               map[string]any{"type": "string", "default": "(compiler)"},
					"archiver":             map[string]any{"type": "string", "default": "ar"},
					"output_path":          map[string]any{"type": "string", "default": "bin"},
					"output_name":          map[string]any{"type": "string", "default": "(configuration name)"},
					"standard":             map[string]any{"type": "string"},
					"optimisation":         map[string]any{"type": []string{"string", "integer"}},
					"debug_level":          map[string]any{"type": []string{"string", "integer"}},
					"gtk_version":          map[string]any{"type": "string", "description": "legacy single pkg-config package alias"},
					"pkg_config_packages":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"include":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"libpaths":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"libs":                 map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"define":               map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"dependencies": map[string]any{
						"type": "array",
						"items": map[string]any{
							"oneOf": []map[string]any{
								{"type": "string", "description": "project path, using the same configuration name"},
								{"type": "object", "description": `{"project-path": "config-name"}`},
							},
						},
					},
					"source_files": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
		},
	},
}

// writeSchema prints descriptorSchema as indented JSON to dest, or to
// stdout when dest is "" or "-".
func writeSchema(dest string) error {
	out, err := json.MarshalIndent(descriptorSchema, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	out = append(out, '\n')

	if dest == "" || dest == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(dest, out, 0644)
}
