package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "projctl",
	Short: "Projctl is a command line tool for interacting with the projectplane platform",
	Long: `projctl is the command-line interface for the ProjectPlane provisioning platform.

ProjectPlane provisions isolated cloud environments ("projects") for teams in a
multi-tenant organization. Every mutation runs as an asynchronous command: the
API answers immediately with a command id, and the orchestrator provisions
resource groups, key vaults, and provider resources in the background.

Common workflows:

  Create a project:
    projctl create --name "web-shop" --type default

  Check a command's progress:
    projctl status <command-id>

  List projects you can see:
    projctl list

  Add a member to a project:
    projctl user add <user-id> --role member --project <project-id>

  Configure a tenant (operators only):
    projctl tenant configure --file tenant.json --secret <system-secret>

Configuration:
  Set the API endpoint and identity via flags, environment variables, or a
  config file:
    PROJECTPLANE_URL       API endpoint (default: http://localhost:6161)
    PROJECTPLANE_TENANT    Tenant id
    PROJECTPLANE_USER      Acting user id (UUID)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".projctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".projctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "PROJECTPLANE_VARNAME"
	viper.SetEnvPrefix("PROJECTPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// identity pulls the tenant and acting user from configuration, reporting a
// usage message when either is missing.
func identity(cmd *cobra.Command) (tenant, user string, ok bool) {
	tenant = viper.GetString("tenant")
	user = viper.GetString("user")

	if tenant == "" {
		cmd.Println("Tenant not set. Use the --tenant flag or the PROJECTPLANE_TENANT environment variable")
		return "", "", false
	}
	if user == "" {
		cmd.Println("User not set. Use the --user flag or the PROJECTPLANE_USER environment variable")
		return "", "", false
	}
	return tenant, user, true
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.projctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "ProjectPlane Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().String("tenant", "", "Tenant id")
	viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))

	rootCmd.PersistentFlags().StringP("user", "u", "", "Acting user id")
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}
