package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [project_id]",
	Short: "Delete a project",
	Long: `Delete a project and all of its cloud resources. Deletion runs
asynchronously; use --wait or 'projctl status' to follow it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		projectID := args[0]
		wait, _ := cmd.Flags().GetBool("wait")
		waitTimeout, _ := cmd.Flags().GetDuration("wait-timeout")

		tenant, user, ok := identity(cmd)
		if !ok {
			return
		}

		client := NewProjectClient(viper.GetString("url"), tenant, user)
		result, err := client.DeleteProject(projectID)
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("✓ Project deletion accepted!\nCommand ID: %s\n", result.CommandID)

		if wait {
			final, err := client.WaitForCommand(result.CommandID, 2*time.Second, waitTimeout)
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return
			}
			printCommandStatus(cmd, final)
		}
	},
}

func init() {
	deleteCmd.Flags().Bool("wait", false, "Wait until deletion finishes")
	deleteCmd.Flags().Duration("wait-timeout", 15*time.Minute, "How long to wait with --wait")

	rootCmd.AddCommand(deleteCmd)
}
