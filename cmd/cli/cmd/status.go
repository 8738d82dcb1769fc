package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectplane/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [command_id]",
	Short: "Get status of a command",
	Long:  `Retrieve the state of an accepted command: its runtime status (pending, running, completed, failed), progress message, result, and any recorded errors.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		commandID := args[0]

		tenant, user, ok := identity(cmd)
		if !ok {
			return
		}

		client := NewProjectClient(viper.GetString("url"), tenant, user)
		result, err := client.GetCommandStatus(commandID)
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		printCommandStatus(cmd, result)
	},
}

func printCommandStatus(cmd *cobra.Command, result *api.CommandStatusResponse) {
	icon := statusIcon(result.RuntimeStatus)
	cmd.Printf("%s %sCommand Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s        %s\n", colorDim, colorReset, result.CommandID)
	if result.CommandType != "" {
		cmd.Printf("%sType:%s      %s\n", colorDim, colorReset, result.CommandType)
	}
	cmd.Printf("%sStatus:%s    %s\n", colorDim, colorReset, colorizeStatus(result.RuntimeStatus))

	if result.CustomStatus != "" {
		cmd.Printf("%sProgress:%s  %s\n", colorDim, colorReset, result.CustomStatus)
	}

	for _, e := range result.Errors {
		cmd.Printf("%sError:%s     %s[%s]%s %s\n", colorDim, colorReset, colorRed, e.Kind, colorReset, e.Message)
	}

	if link, ok := result.Links["project"]; ok {
		cmd.Printf("%sProject:%s   %s\n", colorDim, colorReset, link)
	}

	cmd.Printf("%sCreated:%s   %s\n", colorDim, colorReset, formatTimeWithRelative(result.CreatedAt))
	if result.RuntimeStatus == "completed" || result.RuntimeStatus == "failed" {
		duration := result.UpdatedAt.Sub(result.CreatedAt)
		cmd.Printf("%sFinished:%s  %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(result.UpdatedAt),
			colorCyan, formatDuration(duration), colorReset)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "completed":
		return colorGreen + "✓" + colorReset
	case "failed", "terminated", "canceled":
		return colorRed + "✗" + colorReset
	case "running", "continued_as_new":
		return colorYellow + "⏳" + colorReset
	case "pending":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "completed":
		return icon + " " + colorGreen + status + colorReset
	case "failed", "terminated", "canceled":
		return icon + " " + colorRed + status + colorReset
	case "running", "continued_as_new":
		return icon + " " + colorYellow + status + colorReset
	case "pending":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	relative := relativeTime(t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
