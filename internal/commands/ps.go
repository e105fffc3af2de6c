package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zhubby/p2p-rs/internal/pidfile"
)

var psVerbose bool

// PsCmd represents the ps command
var PsCmd = &cobra.Command{
	Use:   "ps",
	Short: "List running dfs nodes",
	Long:  `List the dfs nodes running on this machine with their mode and peer ID.`,
	RunE:  runPs,
}

func init() {
	PsCmd.Flags().BoolVarP(&psVerbose, "long", "l", false, "Show addresses and command line arguments")
}

func runPs(cmd *cobra.Command, args []string) error {
	entries, err := pidfile.List()
	if err != nil {
		return fmt.Errorf("failed to list processes: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No running dfs nodes found")
		return nil
	}

	fmt.Printf("Running dfs nodes (%d):\n", len(entries))
	fmt.Println("PID\tMODE\tKEY\tUPTIME\tPEER")
	for _, e := range entries {
		key := e.Key
		if key == "" {
			key = "-"
		}
		uptime := time.Since(e.Started).Truncate(time.Second)
		fmt.Printf("%d\t%s\t%s\t%s\t%s\n", e.PID, e.Mode, key, uptime, e.PeerID)

		if !psVerbose {
			continue
		}
		if len(e.Addrs) > 0 {
			fmt.Printf("\taddrs: %s\n", strings.Join(e.Addrs, " "))
		}
		_, cmdline, err := pidfile.GetProcessInfo(e.PID)
		if err != nil {
			fmt.Printf("\t<error: %v>\n", err)
		} else if cmdline == "" {
			fmt.Printf("\t<no command line available>\n")
		} else {
			fmt.Printf("\tcommand: %s\n", cmdline)
		}
	}

	return nil
}
