package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zhubby/p2p-rs/internal/node"
)

type kvOp int

const (
	kvGet kvOp = iota
	kvGetProviders
	kvPut
	kvPutProvider
)

type kvCommand struct {
	op    kvOp
	key   string
	value string
}

var (
	errExpectedKey   = errors.New("expected key")
	errExpectedValue = errors.New("expected value")
	errUnknownVerb   = errors.New("expected GET, GET_PROVIDERS, PUT or PUT_PROVIDER")
)

// KVCmd represents the kv command
var KVCmd = &cobra.Command{
	Use:   "kv",
	Short: "Interactive DHT record and provider shell",
	Long: `Read commands from standard input, one per line:

  GET <key>            fetch the record stored under key
  GET_PROVIDERS <key>  list the peers providing key
  PUT <key> <value>    store a record, the value is the rest of the line
  PUT_PROVIDER <key>   advertise this node as a provider of key`,
	RunE: runKV,
}

// parseKVLine parses one shell line. Anything after the key is ignored except
// for PUT, where it forms the value
func parseKVLine(line string) (kvCommand, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	key, value, _ := strings.Cut(strings.TrimSpace(rest), " ")
	value = strings.TrimSpace(value)

	var cmd kvCommand
	switch verb {
	case "GET":
		cmd.op = kvGet
	case "GET_PROVIDERS":
		cmd.op = kvGetProviders
	case "PUT":
		cmd.op = kvPut
	case "PUT_PROVIDER":
		cmd.op = kvPutProvider
	default:
		return kvCommand{}, errUnknownVerb
	}

	if key == "" {
		return kvCommand{}, errExpectedKey
	}
	cmd.key = key

	if cmd.op == kvPut {
		if value == "" {
			return kvCommand{}, errExpectedValue
		}
		cmd.value = value
	}
	return cmd, nil
}

func runKV(cmd *cobra.Command, args []string) error {
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

	defer register(n, "kv", "", log)()

	lines := readLines(os.Stdin)
	out := cmd.OutOrStdout()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			kv, err := parseKVLine(line)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			runKVCommand(ctx, out, n.Client(), kv)
		case <-n.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func runKVCommand(ctx context.Context, out io.Writer, client node.Client, kv kvCommand) {
	switch kv.op {
	case kvGet:
		value, err := client.GetRecord(ctx, kv.key)
		switch {
		case errors.Is(err, node.ErrRecordNotFound):
			fmt.Fprintf(out, "No record found for %s\n", kv.key)
		case err != nil:
			fmt.Fprintf(out, "Failed to get record: %v\n", err)
		default:
			fmt.Fprintf(out, "Got record %s %s\n", kv.key, value)
		}

	case kvGetProviders:
		providers, err := client.GetProviders(ctx, kv.key)
		if err != nil {
			fmt.Fprintf(out, "Failed to get providers: %v\n", err)
			return
		}
		if len(providers) == 0 {
			fmt.Fprintf(out, "No providers for %s\n", kv.key)
			return
		}
		for _, p := range providers {
			fmt.Fprintf(out, "Peer %s provides key %s\n", p, kv.key)
		}

	case kvPut:
		if err := client.PutRecord(ctx, kv.key, []byte(kv.value)); err != nil {
			fmt.Fprintf(out, "Failed to store record: %v\n", err)
			return
		}
		fmt.Fprintf(out, "Successfully put record %s\n", kv.key)

	case kvPutProvider:
		if err := client.StartProviding(ctx, kv.key); err != nil {
			fmt.Fprintf(out, "Failed to start providing: %v\n", err)
			return
		}
		fmt.Fprintf(out, "Providing %s\n", kv.key)
	}
}

// readLines streams r line by line until EOF
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
