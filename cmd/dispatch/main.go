// Command dispatch is the taxi fleet dispatch engine's single binary: `run`
// starts the engine process, `submit`/`status`/`cancel` are one-shot CLI
// clients against its own control HTTP API. Grounded on the teacher's
// cmd/ride/main.go (flag parsing, PrintHelp, logger init, app wiring), folded
// into one binary since the dispatch engine is one process, not the
// teacher's one-binary-per-service-mode split.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetcore/dispatch/config"
	"github.com/fleetcore/dispatch/internal/engine"
	"github.com/fleetcore/dispatch/pkg/logger"
)

// Exit codes per the control surface contract: 0 success, 2 configuration
// error, 3 broker unreachable after retries, 4 store unreachable.
const (
	exitOK          = 0
	exitUsage       = 1
	exitConfigError = 2
	exitBrokerDown  = 3
	exitStoreDown   = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitUsage
	}

	switch args[0] {
	case "run":
		return runEngine(args[1:])
	case "submit":
		return runSubmit(args[1:])
	case "status":
		return runStatus(args[1:])
	case "cancel":
		return runCancel(args[1:])
	case "-help", "--help", "help":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, config.HelpMessage)
	fmt.Fprint(os.Stderr, `
Subcommands:
  run                    start the dispatch engine
  submit                 inject a JobRequest JSON on stdin
  status <job_id>        print a job's current status
  cancel <job_id>        cancel a job
`)
}

func runEngine(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config-path", "config.yaml", "path to a YAML config file")
	helpFlag := fs.Bool("help", false, "show help message")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *helpFlag {
		config.PrintHelp()
		return exitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.InitLogger("", logger.LevelDebug)

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to configure dispatch engine", err)
		config.PrintHelp()
		return exitConfigError
	}

	if cfg.Mode != "" {
		log = logger.InitLogger(cfg.Mode, logger.LevelDebug)
	}

	eng, err := engine.New(ctx, *cfg, log)
	if err != nil {
		log.Error(ctx, "failed to init dispatch engine", err)
		switch {
		case errors.Is(err, engine.ErrStoreUnreachable):
			return exitStoreDown
		case errors.Is(err, engine.ErrBrokerUnreachable):
			return exitBrokerDown
		default:
			return exitConfigError
		}
	}

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "dispatch engine exited with error", err)
		return exitBrokerDown
	}
	return exitOK
}

// cliClient is the shared HTTP setup for submit/status/cancel: they all talk
// to a running engine's own control plane rather than touching the store or
// bus directly.
type cliClient struct {
	addr  string
	token string
}

func newCLIClient(fs *flag.FlagSet) *cliClient {
	c := &cliClient{}
	fs.StringVar(&c.addr, "addr", "http://localhost:8090", "dispatch engine control plane address")
	fs.StringVar(&c.token, "token", "", "bearer token for dispatcher-authenticated endpoints")
	return c
}

func (c *cliClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func runSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	c := newCLIClient(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
		return exitUsage
	}

	resp, err := c.do(context.Background(), http.MethodPost, "/v1/jobs", bytes.NewReader(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit job: %v\n", err)
		return exitBrokerDown
	}
	return printResponse(resp)
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	c := newCLIClient(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dispatch status <job_id>")
		return exitUsage
	}

	resp, err := c.do(context.Background(), http.MethodGet, "/v1/jobs/"+fs.Arg(0), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get job status: %v\n", err)
		return exitBrokerDown
	}
	return printResponse(resp)
}

func runCancel(args []string) int {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	c := newCLIClient(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dispatch cancel <job_id>")
		return exitUsage
	}

	resp, err := c.do(context.Background(), http.MethodPost, "/v1/jobs/"+fs.Arg(0)+"/cancel", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cancel job: %v\n", err)
		return exitBrokerDown
	}
	return printResponse(resp)
}

func printResponse(resp *http.Response) int {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "%s: %s\n", resp.Status, body)
		return exitUsage
	}
	if len(body) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			fmt.Println(pretty.String())
		} else {
			fmt.Println(string(body))
		}
	}
	return exitOK
}
