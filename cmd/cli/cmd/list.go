package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Long:  `List the projects visible to the acting user. Admins see every project in the tenant; other users only see projects they are members of.`,
	Run: func(cmd *cobra.Command, args []string) {
		tenant, user, ok := identity(cmd)
		if !ok {
			return
		}

		client := NewProjectClient(viper.GetString("url"), tenant, user)
		projects, err := client.ListProjects()
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		if len(projects) == 0 {
			cmd.Println("No projects found")
			return
		}

		cmd.Printf("%-36s  %-24s  %-12s  %s\n", "ID", "NAME", "TYPE", "RESOURCE GROUP")
		for _, p := range projects {
			group := "-"
			if p.ResourceGroup != nil {
				group = p.ResourceGroup.Name
			}
			cmd.Printf("%-36s  %-24s  %-12s  %s\n", p.ID, p.Name, p.Type.ID, group)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
