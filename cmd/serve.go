package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/factsearch/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP search API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		env, err := initSearch(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := api.New(serveDeps(env))
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

func serveDeps(env *searchEnv) api.Deps {
	deps := api.Deps{
		Compiler:       env.Compiler,
		Resolver:       env.SynonymResolver(),
		Executor:       env.Executor,
		Facts:          env.Facts,
		Exporter:       env.Exporter,
		Colors:         env.Colors,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if env.Store != nil {
		deps.Lexicons = env.Store
		deps.OnLexiconChange = env.Resolver.Invalidate
	}
	return deps
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
