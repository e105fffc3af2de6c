package commands

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/spf13/cobra"
	"github.com/zhubby/p2p-rs/internal/node"
	"github.com/zhubby/p2p-rs/internal/pidfile"
	"go.uber.org/zap"
)

var (
	getName  string
	getLocal bool
)

// GetCmd represents the get command
var GetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a file from the network",
	Long: `Look up the providers of a file in the DHT, request it from all of them
at once and print the first answer.

With --local the node first dials a provider started on this machine, found
through the local node registry, so no bootstrap peer is needed.`,
	RunE: runGet,
}

func init() {
	GetCmd.Flags().StringVar(&getName, "name", "", "Name of the file to fetch")
	GetCmd.Flags().BoolVar(&getLocal, "local", false, "Dial a provider running on this machine first")
	GetCmd.MarkFlagRequired("name")
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(0)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	n, log, err := startNode(ctx, cfg)
	if err != nil {
		return err
	}
	defer n.Close()
	dropInbound(n)

	if getLocal {
		entry, ok, err := pidfile.FindProvider(getName)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no local provider for file %s", getName)
		}
		if err := dialAddr(ctx, n, entry.Addrs[0]); err != nil {
			return err
		}
		log.Info("Dialed local provider", zap.Int32("pid", entry.PID))
	}

	client := n.Client()
	found, err := client.GetProviders(ctx, getName)
	if err != nil {
		return fmt.Errorf("failed to find providers: %w", err)
	}
	providers := withoutPeer(found, n.ID())
	if len(providers) == 0 {
		return fmt.Errorf("could not find provider for file %s", getName)
	}

	content, from, err := node.FetchFromAny(ctx, client, providers, getName)
	if err != nil {
		return err
	}
	log.Info("Fetched file", zap.String("key", getName), n.Aliases().Field(from))

	fmt.Printf("Content of file %s: %s\n", getName, content)
	return nil
}

func withoutPeer(ids []peer.ID, self peer.ID) []peer.ID {
	out := make([]peer.ID, 0, len(ids))
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
