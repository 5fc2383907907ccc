package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lofcz/minfold/internal/docdump"
	"github.com/lofcz/minfold/internal/logger"
	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/source"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Regenerate the per-table schema documentation without touching code",
	RunE:  runDocs,
}

func init() {
	rootCmd.AddCommand(docsCmd)
}

func runDocs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LoggerConfig())

	ctx := cmd.Context()
	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := schema.NewService(db, log)
	tables, err := svc.GetSchema(ctx)
	if err != nil {
		return err
	}

	schemaDir := cfg.Generate.SchemaDir
	if schemaDir == "" {
		schemaDir = "schema"
	}
	writer := docdump.New(svc, log, filepath.Join(cfg.Generate.Project, schemaDir))

	var failed int
	for _, table := range tables {
		if err := writer.WriteTable(ctx, table, source.ToPascalCase(table.Name)); err != nil {
			log.Warnf("doc for %s failed: %v", table.Name, err)
			failed++
		}
	}
	fmt.Printf("%d docs written, %d failed\n", len(tables)-failed, failed)
	return nil
}
