// Command tilefetch downloads a region's tiles into a SQLite store that the
// viewer can use as an offline server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/Faultbox/globestream/internal/config"
	"github.com/Faultbox/globestream/internal/logger"
	"github.com/Faultbox/globestream/internal/network"
	"github.com/Faultbox/globestream/internal/prefetch"
	"github.com/Faultbox/globestream/internal/store"
)

var (
	flagOut       = flag.String("out", "tiles.db", "Output SQLite store")
	flagBBox      = flag.String("bbox", "-180,-90,180,90", "Region as west,south,east,north degrees")
	flagMinLevel  = flag.Int("min-level", 0, "First level to fetch")
	flagMaxLevel  = flag.Int("max-level", -1, "Last level to fetch, -1 for all")
	flagJobs      = flag.Int("jobs", 8, "Concurrent downloads")
	flagImagery   = flag.Bool("imagery", true, "Fetch imagery")
	flagElevation = flag.Bool("elevation", true, "Fetch elevation")
	flagOverwrite = flag.Bool("overwrite", false, "Fetch payloads already in the store")
	flagQuiet     = flag.Bool("quiet", false, "Hide progress bars")
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{Level: cfg.Logging.Level, Console: os.Stderr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if err := run(cfg, log.Logger); err != nil {
		log.Error("tilefetch failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	bound, err := parseBBox(*flagBBox)
	if err != nil {
		return err
	}
	land, err := cfg.Landscape()
	if err != nil {
		return err
	}
	servers, err := cfg.NetworkServers()
	if err != nil {
		return err
	}

	st, err := store.Open(*flagOut, log)
	if err != nil {
		return err
	}
	defer st.Close()

	socket := network.NewSocketFetcher(cfg.Network.DialTimeout, log)
	defer socket.Close()
	sqlite := store.NewFetcher(log)
	defer sqlite.Close()

	router := network.NewRouter()
	router.Register(network.ProtocolHTTP, network.NewHTTPFetcher(&http.Client{Timeout: cfg.Network.HTTPTimeout}, log))
	router.Register(network.ProtocolSocket, socket)
	router.Register(network.ProtocolSQLite, sqlite)

	opts := prefetch.DefaultOptions()
	opts.Bound = bound
	opts.MinLevel = *flagMinLevel
	opts.MaxLevel = *flagMaxLevel
	opts.Workers = *flagJobs
	opts.Imagery = *flagImagery
	opts.Elevation = *flagElevation
	opts.Overwrite = *flagOverwrite
	opts.Retries = cfg.Loader.MaxAttempts
	opts.Backoff = cfg.Loader.RetryBackoff
	if *flagQuiet {
		opts.Progress = nil
	}

	task, err := prefetch.NewTask(land, servers, router, st, opts, log)
	if err != nil {
		return err
	}
	fmt.Printf("task %s: %d payloads into %s\n", task.ID, task.Total, *flagOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := task.Run(ctx)
	fmt.Printf("fetched %d, skipped %d, missing %d, failed %d, %d bytes\n",
		r.Fetched, r.Skipped, r.Missing, r.Failed, r.Bytes)
	return err
}

// parseBBox reads "west,south,east,north" in degrees.
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want west,south,east,north", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.IsEmpty() {
		return orb.Bound{}, fmt.Errorf("bbox %q: west/south above east/north", s)
	}
	return b, nil
}
