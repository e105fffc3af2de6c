package commands

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/zhubby/p2p-rs/internal/node"
	"go.uber.org/zap"
)

var (
	providePath string
	provideName string
)

// ProvideCmd represents the provide command
var ProvideCmd = &cobra.Command{
	Use:   "provide",
	Short: "Provide a file to the network",
	Long: `Advertise a file under a name in the DHT and answer requests for it.
The file is read for every request, so edits are picked up without a restart.
Requests for any other name are refused.`,
	RunE: runProvide,
}

func init() {
	ProvideCmd.Flags().StringVar(&providePath, "path", "", "Path of the file to provide")
	ProvideCmd.Flags().StringVar(&provideName, "name", "", "Name the file is provided under")
	ProvideCmd.MarkFlagRequired("path")
	ProvideCmd.MarkFlagRequired("name")
}

func runProvide(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(providePath); err != nil {
		return fmt.Errorf("cannot provide %s: %w", providePath, err)
	}

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

	defer register(n, "provide", provideName, log)()

	client := n.Client()
	if err := client.StartProviding(ctx, provideName); err != nil {
		return fmt.Errorf("failed to start providing: %w", err)
	}
	fmt.Printf("Providing %s as %q\n", providePath, provideName)

	for {
		select {
		case req := <-n.Events():
			serveFile(ctx, client, req, log)
		case <-n.Done():
			return nil
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return nil
		}
	}
}

// serveFile answers req with the provided file, or refuses it
func serveFile(ctx context.Context, client node.Client, req node.InboundRequest, log *zap.Logger) {
	if req.Key != provideName {
		log.Debug("Refusing request for unknown file", zap.String("key", req.Key))
		req.Channel.Drop()
		return
	}

	data, err := os.ReadFile(providePath)
	if err != nil || !utf8.Valid(data) {
		log.Warn("Cannot serve file", zap.String("path", providePath), zap.Error(err))
		req.Channel.Drop()
		return
	}

	if err := client.RespondFile(ctx, string(data), req.Channel); err != nil {
		log.Warn("Failed to respond", zap.String("key", req.Key), zap.Error(err))
		req.Channel.Drop()
	}
}
