// slp-cli is a command-line client for interacting with an slpd daemon.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/simpleledger/slpd/internal/rpcclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := "http://127.0.0.1:8545"
	timeout := 10 * time.Second

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--timeout" && len(args) > 1:
			d, err := time.ParseDuration(args[1])
			if err != nil {
				fatal("invalid --timeout: %v", err)
			}
			timeout = d
			args = args[2:]
		case strings.HasPrefix(args[0], "--timeout="):
			d, err := time.ParseDuration(args[0][len("--timeout="):])
			if err != nil {
				fatal("invalid --timeout: %v", err)
			}
			timeout = d
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.NewWithTimeout(rpcURL, timeout)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "validate":
		cmdValidate(client, cmdArgs)
	case "token":
		cmdToken(client, cmdArgs)
	case "cache":
		cmdCache(client, cmdArgs)
	case "status":
		cmdStatus(client)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: slp-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:8545)
  --timeout <dur>     HTTP timeout, e.g. 30s or 5m (default: 10s)

Commands:
  validate <txid> [--limit-depth] [--burn]
                                  Judge a transaction's token validity
  token info <token_id>           Show token genesis metadata
  cache info                      Show verdict cache counters
  cache flush                     Force a durable cache flush
  status                          Show daemon status
`)
}

// ── validate ────────────────────────────────────────────────────────────

func cmdValidate(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: slp-cli validate <txid> [--limit-depth] [--burn]")
	}

	txid := args[0]
	var limitDepth, burn bool
	for _, a := range args[1:] {
		switch a {
		case "--limit-depth":
			limitDepth = true
		case "--burn":
			burn = true
		default:
			fatal("Unknown validate flag: %s", a)
		}
	}

	result, err := client.Validate(txid, limitDepth, burn)
	if err != nil {
		fatal("slpvalidate: %v", err)
	}

	fmt.Printf("TxID:     %s\n", txid)
	fmt.Printf("Valid:    %v\n", result.Valid)
	if d := result.Details; d != nil {
		fmt.Printf("Validity: %s\n", d.Validity)
		if d.Reason != "" {
			fmt.Printf("Reason:   %s\n", d.Reason)
		}
		if d.TokenID != "" {
			fmt.Printf("Token:    %s\n", d.TokenID)
		}
		if len(d.Outputs) > 0 {
			fmt.Printf("Outputs:  %v\n", d.Outputs)
		}
		if d.Baton != 0 {
			fmt.Printf("Baton:    vout %d\n", d.Baton)
		}
		if d.Burned != nil {
			fmt.Printf("Burned:   %d\n", *d.Burned)
		}
	}
}

// ── token ───────────────────────────────────────────────────────────────

func cmdToken(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: slp-cli token <info> [flags]")
	}

	switch args[0] {
	case "info":
		if len(args) < 2 {
			fatal("Usage: slp-cli token info <token_id>")
		}
		cmdTokenInfo(client, args[1])
	default:
		fatal("Unknown token command: %s\nUsage: slp-cli token <info> [flags]", args[0])
	}
}

func cmdTokenInfo(client *rpcclient.Client, tokenID string) {
	info, err := client.TokenInfo(tokenID)
	if err != nil {
		fatal("slp_getTokenInfo: %v", err)
	}

	fmt.Printf("Token:    %s\n", info.TokenID)
	fmt.Printf("Ticker:   %s\n", info.Ticker)
	fmt.Printf("Name:     %s\n", info.Name)
	if info.DocumentURL != "" {
		fmt.Printf("Document: %s\n", info.DocumentURL)
	}
	if info.DocumentHash != "" {
		fmt.Printf("DocHash:  %s\n", info.DocumentHash)
	}
	fmt.Printf("Decimals: %d\n", info.Decimals)
	fmt.Printf("Supply:   %d\n", info.InitialQuantity)
	if info.MintBatonVout != 0 {
		fmt.Printf("Baton:    vout %d\n", info.MintBatonVout)
	} else {
		fmt.Printf("Baton:    none (fixed supply)\n")
	}
}

// ── cache ───────────────────────────────────────────────────────────────

func cmdCache(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: slp-cli cache <info|flush>")
	}

	switch args[0] {
	case "info":
		stats, err := client.CacheInfo()
		if err != nil {
			fatal("cache_getInfo: %v", err)
		}
		fmt.Printf("Entries:   %d / %d\n", stats.Entries, stats.MaxEntries)
		fmt.Printf("Pinned:    %d\n", stats.Pinned)
		fmt.Printf("Dirty:     %d\n", stats.Dirty)
		fmt.Printf("Tokens:    %d\n", stats.Tokens)
		fmt.Printf("Hits:      %d\n", stats.Hits)
		fmt.Printf("Misses:    %d\n", stats.Misses)
		fmt.Printf("Evictions: %d\n", stats.Evictions)
	case "flush":
		result, err := client.CacheFlush()
		if err != nil {
			fatal("cache_flush: %v", err)
		}
		fmt.Printf("Flushed %d records.\n", result.Flushed)
	default:
		fatal("Unknown cache command: %s\nUsage: slp-cli cache <info|flush>", args[0])
	}
}

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	info, err := client.ServerInfo()
	if err != nil {
		fatal("server_getInfo: %v", err)
	}

	fmt.Printf("Version:  %s\n", info.Version)
	fmt.Printf("Uptime:   %s\n", (time.Duration(info.UptimeSeconds) * time.Second).String())
	fmt.Printf("Verdicts: %d\n", info.CacheEntries)
	fmt.Printf("Tokens:   %d\n", info.Tokens)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
