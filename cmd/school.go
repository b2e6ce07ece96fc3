/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/schoolhub/apiserver/config"
	"github.com/schoolhub/apiserver/internal/store"
	"github.com/schoolhub/apiserver/types"
	"github.com/spf13/cobra"
)

var schoolCmd = &cobra.Command{
	Use:   "school",
	Short: "Manage schools and their branches",
}

var schoolCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a school",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			return fmt.Errorf("school name is required")
		}
		return withDB(cmd.Context(), config.LoadConfig(), func(conn *sql.DB) error {
			school, err := store.NewBranchRepository(conn).CreateSchool(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("create school: %w", err)
			}
			return printJSON(cmd, school)
		})
	},
}

var branchCreateFlags struct {
	schoolID string
	name     string
	code     string
}

var schoolAddBranchCmd = &cobra.Command{
	Use:   "add-branch",
	Short: "Add a branch to a school",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), config.LoadConfig(), func(conn *sql.DB) error {
			branch, err := store.NewBranchRepository(conn).Create(cmd.Context(), types.Branch{
				SchoolID: branchCreateFlags.schoolID,
				Name:     strings.TrimSpace(branchCreateFlags.name),
				Code:     strings.ToUpper(strings.TrimSpace(branchCreateFlags.code)),
			})
			if err != nil {
				return fmt.Errorf("create branch: %w", err)
			}
			return printJSON(cmd, branch)
		})
	},
}

func init() {
	rootCmd.AddCommand(schoolCmd)
	schoolCmd.AddCommand(schoolCreateCmd)
	schoolCmd.AddCommand(schoolAddBranchCmd)

	flags := schoolAddBranchCmd.Flags()
	flags.StringVar(&branchCreateFlags.schoolID, "school", "", "owning school id")
	flags.StringVar(&branchCreateFlags.name, "name", "", "branch name")
	flags.StringVar(&branchCreateFlags.code, "code", "", "short code, unique within the school")
	_ = schoolAddBranchCmd.MarkFlagRequired("school")
	_ = schoolAddBranchCmd.MarkFlagRequired("name")
	_ = schoolAddBranchCmd.MarkFlagRequired("code")
}
