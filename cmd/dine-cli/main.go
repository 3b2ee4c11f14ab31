package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dinechain/cmd/internal/passphrase"
	"dinechain/rpc"
)

const (
	rpcURLEnv       = "DINE_RPC_URL"
	rpcTokenEnv     = "DINE_RPC_TOKEN"
	keystorePassEnv = "DINE_KEYSTORE_PASS"
	defaultRPCURL   = "http://127.0.0.1:8545"
	defaultKeyFile  = "wallet.json"
	callTimeout     = 30 * time.Second
)

type cli struct {
	client  *rpc.Client
	keyFile string
	pass    *passphrase.Source
	stdout  io.Writer
	stderr  io.Writer
}

type command struct {
	usage string
	run   func(c *cli, args []string) error
}

var commands = map[string]command{
	"generate-key": {"generate-key [--out wallet.json]", runGenerateKey},
	"address":      {"address", runAddress},
	"register":     {"register <place-id>", runRegister},
	"remove":       {"remove <restaurant>", runRemove},
	"approve":      {"approve <amount> [--spender addr]", runApprove},
	"transfer":     {"transfer <to> <amount>", runTransfer},
	"pay":          {"pay <restaurant> <amount>", runPay},
	"preview":      {"preview <restaurant> <amount>", runPreview},
	"ratio":        {"ratio <restaurant>", runRatio},
	"list":         {"list", runList},
	"balance":      {"balance [address]", runBalance},
	"payments":     {"payments [--restaurant addr] [--limit n] [--offset n]", runPayments},
	"history":      {"history <restaurant>", runRegistrations},
	"receipt":      {"receipt <tx-hash>", runReceipt},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("dine-cli", flag.ContinueOnError)
	global.SetOutput(stderr)
	endpoint := global.String("rpc", envOr(rpcURLEnv, defaultRPCURL), "JSON-RPC endpoint")
	keyFile := global.String("key", defaultKeyFile, "Path to the wallet keystore")
	global.Usage = func() { printUsage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		printUsage(stderr)
		return 2
	}
	c := &cli{
		client:  rpc.NewClient(*endpoint, os.Getenv(rpcTokenEnv)),
		keyFile: *keyFile,
		pass:    passphrase.NewSource(keystorePassEnv, "wallet keystore"),
		stdout:  stdout,
		stderr:  stderr,
	}
	if err := cmd.run(c, rest[1:]); err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "Error: %v\nUsage: dine-cli %s\n", err, cmd.usage)
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...interface{}) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: dine-cli [--rpc url] [--key wallet.json] <command> [args]")
	fmt.Fprintln(w, "Commands:")
	for _, name := range []string{"generate-key", "address", "register", "remove", "approve", "transfer", "pay", "preview", "ratio", "list", "balance", "payments", "history", "receipt"} {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintf(w, "Environment: %s, %s, %s\n", rpcURLEnv, rpcTokenEnv, keystorePassEnv)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func (c *cli) call(method string, out interface{}, params ...interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return c.client.Call(ctx, method, out, params...)
}

func (c *cli) print(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.stdout, string(data))
	return err
}
