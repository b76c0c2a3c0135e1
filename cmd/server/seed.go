package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/lawyers"
	"github.com/aldoetobex/falacomigo-backend/pkg/database"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

func seedCmd() *cobra.Command {
	var (
		lawyerPassword string
		adminEmail     string
		adminPassword  string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo lawyers and an admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			if err := database.Migrate(db); err != nil {
				return err
			}

			n, err := lawyers.Seed(cmd.Context(), db, lawyerPassword)
			if err != nil {
				return err
			}
			log.Info("lawyers seeded", zap.Int("created", n))

			if adminEmail != "" {
				if err := ensureAdmin(db, adminEmail, adminPassword); err != nil {
					return err
				}
				log.Info("admin ready", zap.String("email", adminEmail))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lawyerPassword, "lawyer-password", "advogado123", "password for every demo lawyer")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "create this admin account when missing")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "password for --admin-email")
	return cmd
}

func ensureAdmin(db *gorm.DB, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(password) < 6 {
		return errors.New("--admin-password must have at least 6 characters")
	}

	var n int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return errors.Wrap(err, "look up admin")
	}
	if n > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash admin password")
	}
	return errors.Wrap(db.Create(&models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Administrador",
		IsAdmin:      true,
		IsActive:     true,
	}).Error, "create admin")
}
