package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectplane/pkg/api"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage tenant and project users",
}

var userAddCmd = &cobra.Command{
	Use:   "add [user_id]",
	Short: "Add a user to the tenant or to a project",
	Long: `Add a user. With --project the user is added to that project with a
project role (owner, member); without it the user is created at tenant level
with a tenant role (admin, creator, none).

Example:
  projctl user add 8f14e45f-... --role admin
  projctl user add 8f14e45f-... --role member --project <project-id>`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID := args[0]
		role, _ := cmd.Flags().GetString("role")
		projectID, _ := cmd.Flags().GetString("project")

		tenant, actor, ok := identity(cmd)
		if !ok {
			return
		}

		if role == "" {
			cmd.Println("Error: --role is required")
			return
		}

		client := NewProjectClient(viper.GetString("url"), tenant, actor)
		def := api.UserDefinition{UserID: userID, Role: role}

		var (
			result *api.CommandStatusResponse
			err    error
		)
		if projectID != "" {
			result, err = client.AddProjectUser(projectID, def)
		} else {
			result, err = client.AddUser(def)
		}
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("✓ User change accepted!\nCommand ID: %s\n", result.CommandID)
	},
}

func init() {
	userAddCmd.Flags().StringP("role", "r", "", "Role to grant (required)")
	userAddCmd.Flags().StringP("project", "p", "", "Project id for a project-level role")

	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}
