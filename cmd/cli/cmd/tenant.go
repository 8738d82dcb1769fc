package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Operator commands for tenant management",
}

var tenantConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Apply a tenant configuration document",
	Long: `Apply a tenant configuration document: providers, project types with
their subscription pools, and seed users. Requires the system secret.

Example:
  projctl tenant configure --file tenant.json --secret <system-secret>`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = viper.GetString("secret")
		}

		if file == "" {
			cmd.Println("Error: --file is required")
			return
		}
		if secret == "" {
			cmd.Println("System secret not set. Use the --secret flag or the PROJECTPLANE_SECRET environment variable")
			return
		}

		document, err := os.ReadFile(file)
		if err != nil {
			cmd.Printf("Error: failed to read %s: %v\n", file, err)
			return
		}

		client := NewProjectClient(viper.GetString("url"), viper.GetString("tenant"), viper.GetString("user"))
		if err := client.ConfigureTenant(document, secret); err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Println("✓ Tenant configured!")
	},
}

func init() {
	tenantConfigureCmd.Flags().StringP("file", "f", "", "Path to the tenant configuration JSON (required)")
	tenantConfigureCmd.Flags().String("secret", "", "System secret for internal endpoints")

	tenantCmd.AddCommand(tenantConfigureCmd)
	rootCmd.AddCommand(tenantCmd)
}
