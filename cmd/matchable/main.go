package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"matchable.io/sdk/v1/action"
	"matchable.io/sdk/v1/client"
	"matchable.io/sdk/v1/logger"
	"matchable.io/sdk/v1/response"
	"matchable.io/sdk/v1/settings"
)

var (
	settingsPath, envFile string
	logLevel, logFile     string
	async                 bool
)

const usage = `usage: matchable [flags] <command> [args]

commands:
  send <type> [json parameters]
  start-session
  start-game [json parameters]
  game-result [json parameters]
  retention <kind>
  conversion <kind>
  recommendations
  stats
  advisor
  enable
  disable
`

func main() {
	if err := parseFlags(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.AddSdkVersion(getSdkVersion())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, flag.Args(), os.Stdout); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func parseFlags() error {
	flag.StringVar(&settingsPath, "settings", "", "Settings file to read and persist, created if missing")
	flag.StringVar(&envFile, "env", ".env", "Dotenv file with MATCHABLE_* variables")
	flag.StringVar(&logLevel, "logLevel", "info", "One of trace, debug, info, warn, error")
	flag.StringVar(&logFile, "logFile", "", "Optional log file, logs go to stderr when it's a terminal")
	flag.BoolVar(&async, "async", false, "Wait for the result through the async api")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return fmt.Errorf("missing command")
	}
	return nil
}

func getSdkVersion() string {
	if os.Getenv("DEV") == "true" {
		return "1.0"
	} else {
		return "$SDK_VERSION"
	}
}

// stdout carries the api replies, so logs only go there as a last resort
func newLogger() (*logger.Logger, error) {
	config := logger.DefaultLoggerConfig(logLevel)

	consoleWriters := []io.Writer{}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		consoleWriters = append(consoleWriters, os.Stderr)
	} else if logFile == "" {
		logFile = filepath.Join(os.TempDir(), "matchable", "matchable.log")
	}

	return logger.New(config, logFile, consoleWriters)
}

func loadSettings(logger *logger.Logger) (settings.Provider, *settings.Store, error) {
	fromEnv, err := settings.FromEnv(envFile)
	if err != nil {
		return nil, nil, err
	}

	if settingsPath == "" {
		return settings.Static(fromEnv), nil, nil
	}

	store, err := settings.LoadStore(logger.GetComponentLogger("settings"), settingsPath, fromEnv)
	if err != nil {
		return nil, nil, err
	}

	if store.Current().Identity == action.ByPlayerId {
		if _, err := store.EnsurePlayerId(); err != nil {
			return nil, nil, err
		}
	}
	return store, store, nil
}

func run(ctx context.Context, logger *logger.Logger, args []string, out io.Writer) error {
	provider, store, err := loadSettings(logger)
	if err != nil {
		return err
	}

	command, args := args[0], args[1:]
	logger.AddField("command", command)

	// enable and disable only touch the persisted flag
	switch command {
	case "enable", "disable":
		if store == nil {
			return fmt.Errorf("%s needs a settings file", command)
		}
		if err := store.SetEnabled(command == "enable"); err != nil {
			return err
		}
		logger.Infof("Matchable sdk enabled: %t", store.Current().Enabled)
		return nil
	}

	c, err := client.New(logger.GetComponentLogger("client"), provider)
	if err != nil {
		return err
	}
	defer c.Close()

	if store != nil {
		store.OnChange(func(s settings.Settings) {
			if s.Enabled {
				c.Enable()
			} else {
				c.Disable()
			}
		})

		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := store.Watch(watchCtx); err != nil {
				logger.Error(err)
			}
		}()
	}

	call, err := buildCall(c, command, args)
	if err != nil {
		return err
	}

	var resp *response.Response
	if async {
		result, ok := <-c.Async(ctx, call)
		if !ok {
			logger.Info("Nothing was sent, the sdk is disabled or the action has no type")
			return nil
		}
		resp, err = result.Response, result.Err
	} else {
		resp, err = call(ctx)
	}

	if resp != nil {
		fmt.Fprintln(out, resp.Text())
	}
	return err
}

func buildCall(c *client.Client, command string, args []string) (client.Call, error) {
	switch command {
	case "send":
		if len(args) == 0 {
			return nil, fmt.Errorf("send needs an action type")
		}
		parameters, err := parseParameters(args[1:])
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*response.Response, error) {
			return c.SendAction(ctx, args[0], parameters)
		}, nil
	case "start-session":
		return c.StartSession, nil
	case "start-game", "game-result":
		parameters, err := parseParameters(args)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*response.Response, error) {
			if command == "start-game" {
				return c.StartGame(ctx, parameters)
			}
			return c.GameResult(ctx, parameters)
		}, nil
	case "retention", "conversion":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s needs exactly one kind", command)
		}
		return func(ctx context.Context) (*response.Response, error) {
			if command == "retention" {
				return c.Retention(ctx, args[0])
			}
			return c.Conversion(ctx, args[0])
		}, nil
	case "recommendations":
		return c.GetRecommendations, nil
	case "stats":
		return c.GetStats, nil
	case "advisor":
		return c.GetAdvisor, nil
	}
	return nil, fmt.Errorf("unknown command %q", command)
}

// parameters are given as a single json object, keys keep a stable order when sent
func parseParameters(args []string) (*action.Parameters, error) {
	if len(args) == 0 {
		return action.NewParameters(), nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(args[0]), &raw); err != nil {
		return nil, fmt.Errorf("parameters must be a json object: %w", err)
	}
	return action.ParametersFrom(raw), nil
}
