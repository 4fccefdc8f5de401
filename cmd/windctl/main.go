// Package main provides windctl, the operator command line for windspot.
//
// Usage:
//
//	windctl live [-json] STATION_ID...
//	windctl stations
//	windctl token -sub NAME [-scopes ops:read,cache:write] [-ttl 12h]
//
// Configuration is read from the same environment as the API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/api/models"
	"github.com/windspot/windspot/internal/auth"
	"github.com/windspot/windspot/internal/bootstrap"
	"github.com/windspot/windspot/internal/conditions"
	"github.com/windspot/windspot/internal/config"
	"github.com/windspot/windspot/internal/provider/resilience"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var errUsage = errors.New("usage: windctl live|stations|token [flags]")

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger().
		Level(zerolog.WarnLevel)

	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, log); err != nil {
		fmt.Fprintf(os.Stderr, "windctl: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), out io.Writer, log zerolog.Logger) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.FromEnv(lookup)
	if err != nil {
		return err
	}

	switch args[0] {
	case "live":
		return runLive(ctx, cfg, args[1:], out, log)
	case "stations":
		return runStations(ctx, cfg, out, log)
	case "token":
		return runToken(cfg, args[1:], out)
	case "version":
		_, err := fmt.Fprintf(out, "windctl %s (built %s)\n", Version, BuildTime)
		return err
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

// missingRow is printed by "live -json" when no source produced a reading.
type missingRow struct {
	StationID  int    `json:"stationId"`
	Resolution string `json:"resolution"`
}

func runLive(ctx context.Context, cfg *config.Config, args []string, out io.Writer, log zerolog.Logger) error {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asJSON := fs.Bool("json", false, "print one JSON object per station")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v: %w", err, errUsage)
	}

	ids, err := stationIDs(fs.Args())
	if err != nil {
		return err
	}

	bindings, err := bootstrap.OpenBindings(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer bindings.Close()

	index, err := bindings.Index(ctx)
	if err != nil {
		return err
	}

	registry := bootstrap.BuildRegistry(cfg, index, resilience.NewHealthRegistry(), log)
	service := conditions.NewService(conditions.ServiceConfig{
		Registry:     registry,
		Evaluator:    conditions.NewStalenessEvaluator(cfg.Live.StaleAfter),
		FetchTimeout: cfg.Live.FetchTimeout,
		Logger:       log,
	})

	if *asJSON {
		enc := json.NewEncoder(out)
		for _, id := range ids {
			result, err := service.Resolve(ctx, id, conditions.SystemClock)
			if err != nil {
				return err
			}
			var row any = missingRow{StationID: id, Resolution: string(result.Resolution)}
			if c := result.Conditions; c != nil {
				row = models.LiveConditions{
					StationID:     id,
					Timestamp:     c.Timestamp,
					WindSpeed:     c.WindSpeed,
					GustSpeed:     c.GustSpeed,
					WindDirection: c.WindDirection,
					Temperature:   c.Temperature,
					Source:        result.Source,
					Resolution:    string(result.Resolution),
					Stale:         result.Stale(),
				}
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tTIME\tWIND\tGUST\tDIR\tTEMP\tSOURCE\tRESOLUTION")
	for _, id := range ids {
		result, err := service.Resolve(ctx, id, conditions.SystemClock)
		if err != nil {
			return err
		}
		c := result.Conditions
		if c == nil {
			fmt.Fprintf(tw, "%d\t-\t-\t-\t-\t-\t-\t%s\n", id, result.Resolution)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%d\t%s\t%s\n",
			id, c.Timestamp, c.WindSpeed, c.GustSpeed, c.WindDirection, c.Temperature,
			result.Source, result.Resolution)
	}
	return tw.Flush()
}

func runStations(ctx context.Context, cfg *config.Config, out io.Writer, log zerolog.Logger) error {
	bindings, err := bootstrap.OpenBindings(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer bindings.Close()

	list, err := bindings.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tSOURCE\tREMOTE\tENABLED")
	for _, b := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", b.StationID, b.Source, b.RemoteID, b.Enabled)
	}
	return tw.Flush()
}

func runToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.String("sub", "", "operator name stamped into the token")
	scopes := fs.String("scopes", auth.ScopeOpsRead, "comma-separated scopes")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v: %w", err, errUsage)
	}
	if *subject == "" {
		return fmt.Errorf("-sub is required: %w", errUsage)
	}

	tokens := auth.NewTokenService(auth.TokenConfig{SigningKey: cfg.OpsSigningKey})
	token, err := tokens.Issue(*subject, splitScopes(*scopes), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func stationIDs(args []string) ([]int, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one station id is required: %w", errUsage)
	}
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid station id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitScopes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
