// rigctl is the console for a running rig.
//
// With arguments it runs one command and exits:
//
//	rigctl -url http://rig.local:8080 add idle base loop
//
// Without arguments it starts an interactive shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/teslashibe/go-animatronic/internal/log"
	"github.com/teslashibe/go-animatronic/pkg/rigclient"
	"github.com/teslashibe/go-animatronic/pkg/shell"
)

const defaultURL = "http://localhost:8080"

func main() {
	url := flag.String("url", "", "Rig address (overrides RIG_URL)")
	history := flag.String("history", defaultHistoryFile(), "Shell history file")
	flag.Parse()

	log.Init("warn")

	base := *url
	if base == "" {
		base = os.Getenv("RIG_URL")
	}
	if base == "" {
		base = defaultURL
	}
	client := rigclient.New(base)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flag.NArg() > 0 {
		sh := shell.NewOneShot(client, os.Stdout)
		if err := sh.Exec(ctx, strings.Join(flag.Args(), " ")); err != nil {
			fmt.Fprintf(os.Stderr, "rigctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	sh, err := shell.New(client, shell.Config{HistoryFile: *history})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rigctl: %v\n", err)
		os.Exit(1)
	}
	if err := sh.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "rigctl: %v\n", err)
		os.Exit(1)
	}
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".rigctl_history")
}
