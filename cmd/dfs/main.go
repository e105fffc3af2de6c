package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zhubby/p2p-rs/internal/commands"
)

var rootCmd = &cobra.Command{
	Use:   "dfs",
	Short: "A tiny distributed file sharing network",
	Long: `dfs shares text files between peers over libp2p.

A node advertises the names of the files it holds in a Kademlia DHT. Other
nodes look the providers up, ask all of them at once over a request/response
protocol and keep the first answer. Nodes on the same network find each
other through mDNS; elsewhere pass --peer with a full multiaddr.

Settings are read from dfs.toml in the current directory when present.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&commands.Global.ConfigPath, "config", "", "Path to the configuration file (default: dfs.toml)")
	flags.IntVar(&commands.Global.SecretKeySeed, "secret-key-seed", -1, "Derive a deterministic identity from this seed (0-255)")
	flags.StringVar(&commands.Global.Peer, "peer", "", "Multiaddr of a peer to dial at startup, including /p2p/<peer-id>")
	flags.StringVar(&commands.Global.ListenAddress, "listen-address", "", "Multiaddr to listen on (default: /ip4/0.0.0.0/tcp/0)")
	flags.CountVarP(&commands.Global.Verbosity, "verbose", "v", "Verbose output (can be specified multiple times: -v, -vv)")

	rootCmd.AddCommand(commands.ProvideCmd)
	rootCmd.AddCommand(commands.GetCmd)
	rootCmd.AddCommand(commands.KVCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ChatCmd)
	rootCmd.AddCommand(commands.PingCmd)
	rootCmd.AddCommand(commands.PsCmd)
	rootCmd.AddCommand(commands.KillCmd)
	rootCmd.AddCommand(commands.KillAllCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
