package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// config is irrelevant here
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(accentStyle.Render("devassist"))
		fmt.Println()
		fmt.Printf("%s %s\n", mutedStyle.Render("Version:"), valueStyle.Render(Version))
		fmt.Printf("%s %s\n", mutedStyle.Render("Git Commit:"), valueStyle.Render(GitCommit))
		fmt.Printf("%s %s\n", mutedStyle.Render("Build Date:"), valueStyle.Render(BuildDate))
		fmt.Printf("%s %s\n", mutedStyle.Render("Go Version:"), valueStyle.Render(runtime.Version()))
		fmt.Printf("%s %s/%s\n", mutedStyle.Render("Platform:"), valueStyle.Render(runtime.GOOS), valueStyle.Render(runtime.GOARCH))
	},
}
