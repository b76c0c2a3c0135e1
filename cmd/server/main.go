// @title           Fala Comigo API
// @version         1.0
// @description     Consultation marketplace for Mozambique: clients order a consultation, a lawyer is bound, payment settles over M-Pesa and the client rates the session.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api/v1
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/config"
	"github.com/aldoetobex/falacomigo-backend/pkg/database"
	"github.com/aldoetobex/falacomigo-backend/pkg/logger"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rootCmd runs serve when no subcommand is given.
func rootCmd() *cobra.Command {
	serve := serveCmd()
	root := &cobra.Command{
		Use:           "server",
		Short:         "Fala Comigo consultation marketplace backend",
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, migrateCmd(), seedCmd())
	return root
}

// bootstrap loads config, the logger and the database shared by every command.
func bootstrap() (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}
