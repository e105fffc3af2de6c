package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version of dfs",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dfs version %s\n", Version)
	},
}
