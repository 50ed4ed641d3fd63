package main

import (
	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/repository"
	"github.com/deppfellow/erm/internal/server"
	"github.com/deppfellow/erm/internal/service"
	"github.com/spf13/cobra"
)

var adminFlags struct {
	email    string
	password string
	name     string
}

// createAdminCmd seeds the first administrator, who then creates every
// other account through the API.
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	RunE:  runCreateAdmin,
}

func init() {
	createAdminCmd.Flags().StringVar(&adminFlags.email, "email", "", "login email of the administrator")
	createAdminCmd.Flags().StringVar(&adminFlags.password, "password", "", "initial password")
	createAdminCmd.Flags().StringVar(&adminFlags.name, "name", "Administrator", "display name")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	cfg, log, loggerService, err := bootstrap()
	if err != nil {
		return err
	}
	defer loggerService.Shutdown()

	srv, err := server.New(cfg, log, loggerService)
	if err != nil {
		return err
	}
	defer srv.Close()

	services, err := service.NewService(srv, repository.NewRepositories(srv))
	if err != nil {
		return err
	}

	user, err := services.Users.Create(cmd.Context(), nil, service.CreateUserInput{
		Email:    adminFlags.email,
		Password: adminFlags.password,
		FullName: adminFlags.name,
		Role:     model.RoleAdmin,
	})
	if err != nil {
		return err
	}

	log.Info().Str("user_id", user.ID.String()).Str("email", user.Email).Msg("administrator created")
	return nil
}
