package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"yieldguard/internal/chain"
	"yieldguard/internal/config"
	"yieldguard/internal/logging"
)

type command struct {
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = map[string]command{
	"positions": {"list the owner's positions", runPositions},
	"details":   {"show one position", runDetails},
	"health":    {"classify every position of the owner", runHealth},
	"create":    {"create a looping position", runCreate},
	"leverage":  {"approve and execute leverage on a position", runLeverage},
	"oracle":    {"read the destination price feed", runOracle},
	"pending":   {"list unconfirmed transactions", runPending},
}

type env struct {
	cfg    *config.Config
	log    *zap.Logger
	client *ethclient.Client
}

func main() {
	global := flag.NewFlagSet("looper", flag.ExitOnError)
	configPath := global.String("config", "internal/config/config.yaml", "path to config file; testnet defaults are used when it does not exist")
	envPath := global.String("env", ".env", "path to .env file")
	logLevel := global.String("log-level", "warn", "log level for the CLI")
	global.Usage = usage(global)
	_ = global.Parse(os.Args[1:])

	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}
	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		global.Usage()
		os.Exit(2)
	}

	if err := config.LoadEnv(*envPath); err != nil {
		fatal(err)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	logCfg := cfg.Log
	logCfg.Level = *logLevel
	log := logging.New(logCfg)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{cfg: cfg, log: log}
	if name != "pending" {
		client, err := chain.Dial(ctx, cfg.RPC.URL, cfg.RPC.Timeout)
		if err != nil {
			fatal(err)
		}
		defer client.Close()
		e.client = client
	}
	if err := cmd.run(ctx, e, global.Args()[1:]); err != nil {
		fatal(err)
	}
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		b.WriteString("usage: looper [flags] <command> [command flags]\n\ncommands:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  %-10s %s\n", name, commands[name].summary)
		}
		b.WriteString("\nflags:\n")
		fmt.Fprint(os.Stderr, b.String())
		fs.PrintDefaults()
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default()
		}
		return nil, err
	}
	return config.Load(path)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
