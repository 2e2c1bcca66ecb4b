package commands

import (
	"context"
	"fmt"

	"github.com/halcyon-id/halcyon/internal/schema"
)

// Schema exports the input-shape schemas for every policy entrypoint.
func (c *Controller) Schema(_ context.Context, outputDir string) error {
	if err := schema.Export(outputDir); err != nil {
		return err
	}

	for _, entry := range schema.Entries() {
		fmt.Printf("wrote %s/%s.schema.json\n", outputDir, entry.Entrypoint)
	}
	return nil
}
