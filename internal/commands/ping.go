package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"github.com/spf13/cobra"
)

var pingCount int

// PingCmd represents the ping command
var PingCmd = &cobra.Command{
	Use:   "ping <multiaddr>",
	Short: "Measure round trip time to a peer",
	Long: `Dial a peer by its full multiaddr (including /p2p/<peer-id>) and send
libp2p pings to it.`,
	Args: cobra.ExactArgs(1),
	RunE: runPing,
}

func init() {
	PingCmd.Flags().IntVarP(&pingCount, "count", "c", 4, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(0)
	if err != nil {
		return err
	}
	// Ping never joins the provider network
	cfg.MDNS.Enabled = false

	ctx, cancel := signalContext()
	defer cancel()

	n, _, err := startNode(ctx, cfg)
	if err != nil {
		return err
	}
	defer n.Close()
	dropInbound(n)

	id, _, err := parsePeerAddr(args[0])
	if err != nil {
		return err
	}
	if err := dialAddr(ctx, n, args[0]); err != nil {
		return err
	}

	pingCtx, stop := context.WithCancel(ctx)
	defer stop()
	results := ping.Ping(pingCtx, n.Host(), id)

	var total time.Duration
	for i := 0; i < pingCount; i++ {
		select {
		case res := <-results:
			if res.Error != nil {
				return fmt.Errorf("ping failed: %w", res.Error)
			}
			total += res.RTT
			fmt.Printf("Pong from %s: time=%s\n", id, res.RTT)
		case <-ctx.Done():
			return nil
		}
	}

	if pingCount > 0 {
		fmt.Printf("%d pings, average %s\n", pingCount, total/time.Duration(pingCount))
	}
	return nil
}
