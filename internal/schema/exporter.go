// Package schema derives machine-readable descriptions of each policy
// entrypoint's input document directly from the host's Go types. The emitted
// artifacts are the contract policy authors compile against; they are
// produced offline at build/release time, never on a request path.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
)

// Generate reflects a JSON Schema (Draft 2020-12) from a Go input type.
func Generate(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(v)

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return data, nil
}

// Export writes one <entrypoint>.schema.json per known entrypoint into dir.
func Export(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, entry := range Entries() {
		data, err := Generate(entry.Input)
		if err != nil {
			return fmt.Errorf("failed to generate schema for %s: %w", entry.Entrypoint, err)
		}

		path := filepath.Join(dir, entry.Entrypoint+".schema.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	return nil
}
