package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zhubby/p2p-rs/internal/chat"
)

var chatTopic string

// ChatCmd represents the chat command
var ChatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with other nodes over GossipSub",
	Long: `Join a GossipSub topic and relay lines between standard input and the
other members. Type /peers to list the members currently in the mesh.`,
	RunE: runChat,
}

func init() {
	ChatCmd.Flags().StringVar(&chatTopic, "topic", chat.DefaultTopic, "Topic to join")
}

func runChat(cmd *cobra.Command, args []string) error {
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

	ps, err := chat.NewGossipSub(ctx, n.Host(), n.ContentRouting())
	if err != nil {
		return fmt.Errorf("failed to start pubsub: %w", err)
	}
	room, err := chat.Join(ctx, ps, n.ID(), chatTopic, log)
	if err != nil {
		return err
	}
	defer room.Close()

	defer register(n, "chat", chatTopic, log)()

	fmt.Printf("Joined %q, type a message and press enter\n", chatTopic)

	aliases := n.Aliases()
	lines := readLines(os.Stdin)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
			case "/peers":
				for _, p := range room.ListPeers() {
					fmt.Printf("  %s %s\n", aliases.Alias(p), p)
				}
			default:
				if err := room.Publish(line); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to send: %v\n", err)
				}
			}
		case msg, ok := <-room.Messages:
			if !ok {
				return nil
			}
			fmt.Printf("%s: %s\n", aliases.Alias(msg.From), msg.Text)
		case <-n.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
