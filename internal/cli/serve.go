package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"videobatch.dev/internal/dirs"
	"videobatch.dev/internal/server"
)

func newServeCmd(version string) *cobra.Command {
	var (
		addr     string
		httpMode bool
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio by default, --http for StreamableHTTP)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			if a.configPath == "" {
				log.Warn().Msg("no settings file found, serving defaults; use the 'init' tool to create " + dirs.SettingsFile)
			}

			srv := server.NewServer(server.Deps{
				Settings:     a.settings,
				ConfigPath:   a.configPath,
				ConfigLoaded: a.configPath != "",
				Registry:     a.registry,
				Batch:        a.batch,
				Sessions:     a.sessions,
				History:      a.history,
			}, version)

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if watch {
				go func() {
					if err := srv.WatchConfig(ctx); err != nil {
						log.Warn().Err(err).Msg("settings watch disabled")
					}
				}()
			}

			if !httpMode && !cmd.Flags().Changed("addr") {
				return srv.Serve()
			}
			return srv.ServeHTTP(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address for --http")
	cmd.Flags().BoolVar(&httpMode, "http", false, "Serve MCP over StreamableHTTP instead of stdio")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload jobs when the settings file changes")

	return cmd
}

func newInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an example " + dirs.SettingsFile,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			absPath, err := server.WriteExampleConfig(path, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", styleOK.Render("Created"), absPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", dirs.SettingsFile, "Where to write the settings file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}
