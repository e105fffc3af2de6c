package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/zhubby/p2p-rs/internal/node"
	"github.com/zhubby/p2p-rs/internal/server"
	"go.uber.org/zap"
)

var (
	port       int
	publishDir string
)

// ServeCmd represents the serve command
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a node with an HTTP and WebSocket gateway",
	Long: `Run a long-lived node and expose its client operations over HTTP.

Files published through the gateway (or preloaded with --publish) are kept in
memory and served to any peer that asks for them.`,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().IntVarP(&port, "port", "p", 0, "Gateway port, scanning upward if taken (default from config, 8080)")
	ServeCmd.Flags().StringVar(&publishDir, "publish", "", "Directory of text files to publish at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(port)
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

	srv := server.New(ctx, n.Client(), cfg.Gateway, server.Options{
		Self:     n.ID(),
		Gatherer: n.Metrics().Gatherer(),
	}, log)

	if publishDir != "" {
		if err := publishDirectory(ctx, n.Client(), srv.Library(), publishDir, log); err != nil {
			return err
		}
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer srv.Stop()

	defer register(n, "serve", "", log)()

	fmt.Printf("Server running at http://localhost:%d\n", srv.Port())

	for {
		select {
		case req := <-n.Events():
			srv.Serve(req)
		case <-srv.Done():
			return nil
		case <-n.Done():
			return nil
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return nil
		}
	}
}

// publishDirectory loads every UTF-8 regular file in dir into lib and
// advertises it under its base name. Other files are skipped.
func publishDirectory(ctx context.Context, client node.Client, lib *server.Library, dir string, log *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read publish directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if !utf8.Valid(data) {
			log.Warn("Skipping non-text file", zap.String("name", entry.Name()))
			continue
		}

		lib.Put(entry.Name(), string(data))
		if err := client.StartProviding(ctx, entry.Name()); err != nil {
			return fmt.Errorf("failed to provide %s: %w", entry.Name(), err)
		}
		log.Info("Published file", zap.String("name", entry.Name()), zap.Int("size", len(data)))
	}
	return nil
}
