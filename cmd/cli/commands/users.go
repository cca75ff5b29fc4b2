package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	usersCmd.AddCommand(listUsersCmd)
	usersCmd.AddCommand(countUsersCmd)

	listUsersCmd.Flags().IntP("limit", "l", 0, "Limit the number of users returned")
	listUsersCmd.Flags().Int("offset", 0, "Number of users to skip")
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect users persisted by the pipeline",
}

var listUsersCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted users",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		users, err := apiClient.ListUsers(context.Background(), limit, offset)
		if err != nil {
			return fmt.Errorf("error fetching users: %w", err)
		}

		return printJSON(users)
	},
}

var countUsersCmd = &cobra.Command{
	Use:   "count",
	Short: "Count persisted users",
	RunE: func(_ *cobra.Command, _ []string) error {
		count, err := apiClient.CountUsers(context.Background())
		if err != nil {
			return fmt.Errorf("error counting users: %w", err)
		}

		fmt.Println(count)
		return nil
	},
}

// GetUsersCmd returns the users command
func GetUsersCmd() *cobra.Command {
	return usersCmd
}
