package cli

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lofcz/minfold/internal/config"
	"github.com/lofcz/minfold/internal/engine"
	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/filestore"
	"github.com/lofcz/minfold/internal/filestore/minio"
	"github.com/lofcz/minfold/internal/logger"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the project's generated layer against the database",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().Bool("aggressive", false, "enable the suffix-strip fallback when resolving class names")
	syncCmd.Flags().Int("parallelism", 0, "max concurrent per-table workers (0 = number of CPUs)")
	syncCmd.Flags().String("models-dir", "", "models directory relative to the project root (default \"models\")")
	syncCmd.Flags().String("dao-dir", "", "dao directory relative to the project root (default \"dao\")")
	syncCmd.Flags().String("schema-dir", "", "schema docs directory relative to the project root (default \"schema\")")
	syncCmd.Flags().Bool("skip-docs", false, "skip the schema documentation dump")
	syncCmd.Flags().Bool("publish", false, "upload schema docs to object storage after the run")
	syncCmd.Flags().String("publish-endpoint", "", "object storage endpoint (host:port)")
	syncCmd.Flags().String("publish-bucket", "", "object storage bucket")
	syncCmd.Flags().String("publish-access-key", "", "object storage access key")
	syncCmd.Flags().String("publish-secret-key", "", "object storage secret key")
	syncCmd.Flags().Bool("publish-ssl", false, "use TLS for object storage")

	viper.BindPFlag("generate.aggressive", syncCmd.Flags().Lookup("aggressive"))
	viper.BindPFlag("generate.parallelism", syncCmd.Flags().Lookup("parallelism"))
	viper.BindPFlag("generate.models_dir", syncCmd.Flags().Lookup("models-dir"))
	viper.BindPFlag("generate.dao_dir", syncCmd.Flags().Lookup("dao-dir"))
	viper.BindPFlag("generate.schema_dir", syncCmd.Flags().Lookup("schema-dir"))
	viper.BindPFlag("generate.skip_docs", syncCmd.Flags().Lookup("skip-docs"))
	viper.BindPFlag("publish.enabled", syncCmd.Flags().Lookup("publish"))
	viper.BindPFlag("publish.endpoint", syncCmd.Flags().Lookup("publish-endpoint"))
	viper.BindPFlag("publish.bucket", syncCmd.Flags().Lookup("publish-bucket"))
	viper.BindPFlag("publish.access_key", syncCmd.Flags().Lookup("publish-access-key"))
	viper.BindPFlag("publish.secret_key", syncCmd.Flags().Lookup("publish-secret-key"))
	viper.BindPFlag("publish.use_ssl", syncCmd.Flags().Lookup("publish-ssl"))

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LoggerConfig())

	result, err := engine.Synchronize(cmd.Context(), cfg.DatabaseConfig(), cfg.Generate.Project, cfg.EngineOptions(), log)
	if err != nil {
		return err
	}
	printSummary(result)

	if cfg.Publish.Enabled {
		if err := publishDocs(cmd, cfg, log); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(result *engine.Result) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for _, name := range result.Synthesized {
		fmt.Printf("  %s %s\n", green.Sprint("NEW    "), name)
	}
	for _, name := range result.Synchronized {
		fmt.Printf("  %s %s\n", cyan.Sprint("SYNCED "), name)
	}
	for _, name := range result.Deleted {
		fmt.Printf("  %s %s\n", red.Sprint("DELETED"), name)
	}
	for _, skip := range result.Skips {
		fmt.Printf("  %s %s: %s\n", yellow.Sprint("SKIPPED"), skip.Target, skip.Reason)
	}
	fmt.Printf("%d synthesized, %d synchronized, %d deleted, %d skipped\n",
		len(result.Synthesized), len(result.Synchronized), len(result.Deleted), len(result.Skips))
}

func publishDocs(cmd *cobra.Command, cfg *config.Config, log *logger.Logger) error {
	if cfg.Publish.Endpoint == "" || cfg.Publish.Bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "publish requires an endpoint and a bucket")
	}

	store, err := minio.New(cmd.Context(), cfg.StoreConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	schemaDir := cfg.Generate.SchemaDir
	if schemaDir == "" {
		schemaDir = "schema"
	}
	dir := filepath.Join(cfg.Generate.Project, schemaDir)

	n, err := filestore.PublishDir(cmd.Context(), store, cfg.Publish.Bucket, dir)
	if err != nil {
		return err
	}
	log.Infof("published %d schema docs to %s", n, cfg.Publish.Bucket)
	return nil
}
