// clustermux launches a cluster of remote-shell consoles and mirrors
// every keystroke typed into the daemon console to all of them.
//
//	clustermux [-d] [-u user] [-p port] host...        launch a session
//	clustermux [flags] daemon -- host...               (internal) daemon console
//	clustermux [flags] client -- host                  (internal) client console
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/mattn/go-isatty"

	"github.com/user/clustermux/internal/client"
	"github.com/user/clustermux/internal/cluster"
	"github.com/user/clustermux/internal/config"
	"github.com/user/clustermux/internal/console"
	"github.com/user/clustermux/internal/daemon"
	"github.com/user/clustermux/internal/history"
	"github.com/user/clustermux/internal/logging"
)

const historyFileName = "clustermux-history.db"

type cliArgs struct {
	debug    bool
	username string
	port     int
	mode     string
	hosts    []string
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	switch args.mode {
	case "daemon":
		err = runDaemon(args)
	case "client":
		err = runClient(args)
	default:
		err = runDefault(args)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseArgs(argv []string) (cliArgs, error) {
	var args cliArgs
	fs := flag.NewFlagSet("clustermux", flag.ContinueOnError)
	fs.BoolVar(&args.debug, "d", false, "enable debug logging")
	fs.StringVar(&args.username, "u", "", "username used to connect to the hosts")
	fs.IntVar(&args.port, "p", 0, "port to connect to on the hosts")
	if err := fs.Parse(argv); err != nil {
		return args, err
	}

	rest := fs.Args()
	if len(rest) > 0 && (rest[0] == "daemon" || rest[0] == "client") {
		args.mode = rest[0]
		rest = rest[1:]
		if len(rest) == 0 || rest[0] != "--" {
			return args, fmt.Errorf("%s mode requires a -- separator before the hosts", args.mode)
		}
		rest = rest[1:]
	}
	args.hosts = rest

	if args.mode == "client" && len(args.hosts) != 1 {
		return args, fmt.Errorf("client mode takes exactly one host, got %d", len(args.hosts))
	}
	return args, nil
}

func loadConfig() (config.Config, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(path)
}

func runDaemon(args cliArgs) error {
	logger, err := logging.Init("daemon", args.debug)
	if err != nil {
		return err
	}

	api, err := console.New()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	o := daemon.New(api, cfg, daemon.Options{
		Executable: exe,
		Username:   args.username,
		Port:       args.port,
		Debug:      args.debug,
		Hosts:      args.hosts,
	}, logger)
	return o.Run(context.Background())
}

func runClient(args cliArgs) error {
	host := args.hosts[0]
	logger, err := logging.Init("client_"+host, args.debug)
	if err != nil {
		return err
	}

	api, err := console.New()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	r := client.NewRunner(api, cfg.Client, host, args.username, args.port, logger)
	return r.Run(context.Background())
}

// runDefault is the user-facing entry: resolve the host list, persist
// the merged config, record the session, and hand off to a fresh
// daemon console.
func runDefault(args cliArgs) error {
	cfgPath, err := config.DefaultPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	// Writing the merged config back seeds a full template on first
	// run and upgrades partial files in place.
	if err := cfg.Save(cfgPath); err != nil {
		return err
	}

	store, err := history.Open(context.Background(), filepath.Join(filepath.Dir(cfgPath), historyFileName))
	if err != nil {
		return err
	}
	defer store.Close()

	tags := args.hosts
	if len(tags) == 0 {
		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			return fmt.Errorf("no hosts given; usage: clustermux [-d] [-u user] [-p port] host...")
		}
		tags, err = promptHosts(store)
		if err != nil {
			return err
		}
	}

	hosts, err := cluster.Resolve(tags, cfg.Clusters)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		return fmt.Errorf("host list resolved to nothing")
	}

	if err := store.Record(context.Background(), hosts); err != nil {
		// History is a convenience; a failed write should not block
		// the session.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	return spawnDaemon(args, hosts)
}

// promptHosts is the interactive fallback for a GUI launch with no
// arguments: show recent sessions and loop until a usable host list
// comes in.
func promptHosts(store *history.Store) ([]string, error) {
	recent, err := store.Recent(context.Background(), 5)
	if err == nil && len(recent) > 0 {
		fmt.Println("Recent sessions:")
		for _, e := range recent {
			fmt.Printf("  %s  %s\n", e.StartedAt.Local().Format("2006-01-02 15:04"), strings.Join(e.Hosts, " "))
		}
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("Hosts or cluster tags (space separated): ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read host list: %w", err)
		}
		tokens, err := shellquote.Split(strings.TrimSpace(line))
		if err != nil {
			fmt.Printf("invalid host list: %v\n", err)
			continue
		}
		if len(tokens) == 0 {
			continue
		}
		return tokens, nil
	}
}

// spawnDaemon hands the resolved host list to a daemon running in its
// own console window.
func spawnDaemon(args cliArgs, hosts []string) error {
	api, err := console.New()
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	daemonArgs := make([]string, 0, len(hosts)+7)
	if args.debug {
		daemonArgs = append(daemonArgs, "-d")
	}
	if args.username != "" {
		daemonArgs = append(daemonArgs, "-u", args.username)
	}
	if args.port != 0 {
		daemonArgs = append(daemonArgs, "-p", strconv.Itoa(args.port))
	}
	daemonArgs = append(daemonArgs, "daemon", "--")
	daemonArgs = append(daemonArgs, hosts...)

	if _, err := api.SpawnClientConsole(exe, daemonArgs); err != nil {
		return fmt.Errorf("failed to spawn daemon console: %w", err)
	}
	return nil
}
