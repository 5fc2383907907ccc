package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lofcz/minfold/internal/config"
	"github.com/lofcz/minfold/internal/errs"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .minfold.yaml in the current directory",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	const path = ".minfold.yaml"
	if _, err := os.Stat(path); err == nil {
		return errs.New(errs.ErrKindInvalidInput, path+" already exists")
	}

	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.ErrKindWriteFailed, "create "+path, err)
	}
	defer f.Close()

	if err := config.WriteExample(f); err != nil {
		return err
	}
	fmt.Println("wrote", path)
	return nil
}
