package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lofcz/minfold/internal/logger"
	"github.com/lofcz/minfold/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the schema, row previews, and on-demand sync over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LoggerConfig())

	db, err := openDB(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(db, cfg.Generate.Project, cfg.EngineOptions(), log)
	log.Infof("listening on %s", cfg.Server.Addr)
	return srv.ListenAndServe(cfg.Server.Addr)
}
