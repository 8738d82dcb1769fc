package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectplane/pkg/api"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new project",
	Long: `Create a new project. Provisioning runs asynchronously; the command prints
the command id to poll with 'projctl status'.

Example:
  projctl create --name "web-shop" --type default
  projctl create --name "data-lab" --tag team=data --tag env=dev --wait`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		projectType, _ := flags.GetString("type")
		tags, _ := flags.GetStringSlice("tag")
		wait, _ := flags.GetBool("wait")
		waitTimeout, _ := flags.GetDuration("wait-timeout")

		tenant, user, ok := identity(cmd)
		if !ok {
			return
		}

		if name == "" {
			cmd.Println("Error: --name is required")
			return
		}

		client := NewProjectClient(viper.GetString("url"), tenant, user)
		def := api.ProjectDefinition{
			Name:        name,
			ProjectType: projectType,
			Tags:        parseTags(tags),
		}

		result, err := client.CreateProject(def)
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("✓ Project creation accepted!\nCommand ID: %s\n", result.CommandID)
		if link, ok := result.Links["status"]; ok {
			cmd.Printf("Status: %s\n", link)
		}

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

func parseTags(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		tags[key] = value
	}
	return tags
}

func printAPIError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}

func init() {
	flags := createCmd.Flags()
	flags.StringP("name", "n", "", "Name of the project (required)")
	flags.StringP("type", "t", "", "Project type id (defaults to the tenant's default type)")
	flags.StringSlice("tag", []string{}, "Tag as key=value (repeatable)")
	flags.Bool("wait", false, "Wait until provisioning finishes")
	flags.Duration("wait-timeout", 15*time.Minute, "How long to wait with --wait")

	rootCmd.AddCommand(createCmd)
}
