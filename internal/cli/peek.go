package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/logger"
)

var peekLimit int

var peekCmd = &cobra.Command{
	Use:   "peek <table>",
	Short: "Print a few rows from a table as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeek,
}

func init() {
	peekCmd.Flags().IntVar(&peekLimit, "limit", 20, "max rows to fetch (1..500)")
	rootCmd.AddCommand(peekCmd)
}

func runPeek(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if peekLimit < 1 || peekLimit > 500 {
		return errs.New(errs.ErrKindInvalidInput, "limit must be 1..500")
	}
	log := logger.New(cfg.LoggerConfig())

	ctx := cmd.Context()
	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	table := args[0]
	names, err := db.ListTables(ctx)
	if err != nil {
		return err
	}
	known := false
	for _, name := range names {
		if strings.EqualFold(name, table) {
			table = name
			known = true
			break
		}
	}
	if !known {
		return errs.New(errs.ErrKindNotFound, "no such table "+table)
	}

	query, params, err := database.Select(table, db.Dialect()).Limit(peekLimit).Build()
	if err != nil {
		return err
	}
	rows, err := db.Query(ctx, query, params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	data, err := database.ScanRows(rows)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d rows from %s\n", len(data), table)
	return nil
}
