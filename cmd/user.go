/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/schoolhub/apiserver/config"
	"github.com/schoolhub/apiserver/internal/db"
	"github.com/schoolhub/apiserver/internal/mq"
	"github.com/schoolhub/apiserver/internal/services"
	"github.com/schoolhub/apiserver/internal/store"
	"github.com/schoolhub/apiserver/types"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateFlags struct {
	email     string
	password  string
	firstName string
	lastName  string
	role      string
	schoolID  string
	branchID  string
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an active user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := types.ParseRole(userCreateFlags.role)
		if err != nil {
			return err
		}

		var branchID *string
		if userCreateFlags.branchID != "" {
			branchID = &userCreateFlags.branchID
		}

		return withUserService(cmd.Context(), func(users *services.UserService) error {
			user, err := users.Create(cmd.Context(), services.NewUser{
				Email:     userCreateFlags.email,
				Password:  userCreateFlags.password,
				FirstName: userCreateFlags.firstName,
				LastName:  userCreateFlags.lastName,
				Role:      role,
				SchoolID:  userCreateFlags.schoolID,
				BranchID:  branchID,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			return printJSON(cmd, user)
		})
	},
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate <user-id>",
	Short: "Deactivate a user; existing sessions stop working immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserService(cmd.Context(), func(users *services.UserService) error {
			if err := users.SetActive(cmd.Context(), args[0], false); err != nil {
				return fmt.Errorf("deactivate user: %w", err)
			}
			cmd.Printf("user %s deactivated\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userDeactivateCmd)

	flags := userCreateCmd.Flags()
	flags.StringVar(&userCreateFlags.email, "email", "", "login email")
	flags.StringVar(&userCreateFlags.password, "password", "", "initial password")
	flags.StringVar(&userCreateFlags.firstName, "first-name", "", "first name")
	flags.StringVar(&userCreateFlags.lastName, "last-name", "", "last name")
	flags.StringVar(&userCreateFlags.role, "role", "", "one of SUPER_ADMIN, BRANCH_ADMIN, REGISTRAR, TEACHER, ACCOUNTANT, STUDENT, PARENT")
	flags.StringVar(&userCreateFlags.schoolID, "school", "", "school id")
	flags.StringVar(&userCreateFlags.branchID, "branch", "", "branch id (required for every role except SUPER_ADMIN)")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
	_ = userCreateCmd.MarkFlagRequired("role")
	_ = userCreateCmd.MarkFlagRequired("school")
}

// withUserService opens the database and, when configured, the event
// broker for the duration of fn.
func withUserService(ctx context.Context, fn func(*services.UserService) error) error {
	cfg := config.LoadConfig()
	return withDB(ctx, cfg, func(conn *sql.DB) error {
		var opts []services.UserServiceOption
		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open mq: %w", err)
		}
		if broker != nil {
			defer broker.Close()
			opts = append(opts, services.WithEventPublisher(broker))
		}
		return fn(services.NewUserService(store.NewUserRepository(conn), opts...))
	})
}

func withDB(ctx context.Context, cfg config.Config, fn func(*sql.DB) error) error {
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func printJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
