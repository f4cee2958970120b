//            _     _        _
//   ___  __| |___| |_ __ _| |_ ___
//  / _ \/ _` / __| __/ _` | __/ __|
// |  __/ (_| \__ \ || (_| | |_\__ \
//  \___|\__,_|___/\__\__,_|\__|___/
//
//  Copyright © 2021 - 2026 The edstats Authors. All rights reserved.
//
//  CONTACT: engineering@edstats.io
//

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	enterrors "github.com/edstats/edstats/entities/errors"
	entsnapshots "github.com/edstats/edstats/entities/snapshots"
	"github.com/edstats/edstats/usecases/config"
	"github.com/edstats/edstats/usecases/monitoring"
	"github.com/edstats/edstats/usecases/snapshots"
)

const (
	TargetLatest = "latest"
	TargetList   = "list"
	TargetShow   = "show"
	TargetVerify = "verify"
	TargetAwait  = "await"
	TargetDelete = "delete"
)

// Options represents command line options
type Options struct {
	Target       string        `long:"target" description:"operation to run: latest, list, show, verify, await, delete"`
	ConfigFile   string        `long:"config-file" description:"path to the config file, defaults to ./edstats.conf.json"`
	Snapshot     string        `long:"snapshot" description:"snapshot id (as-of date, YYYY-MM-DD) for show, verify, and delete"`
	Entity       string        `long:"entity" description:"district id; with --target show, prints this district's record instead of the whole snapshot"`
	Limit        int           `long:"limit" description:"maximum snapshots to list, 0 means all" default:"20"`
	Status       string        `long:"status" description:"filter listings by snapshot status: success, partial, failed"`
	AwaitTimeout time.Duration `long:"await-timeout" description:"how long --target await keeps polling for a successful snapshot" default:"10m"`
}

func main() {
	var opts Options
	log := logger()

	if _, err := flags.Parse(&opts); err != nil {
		log.Fatal("failed to parse command line args ", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(opts.ConfigFile, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	metrics := monitoring.GetMetrics()
	if cfg.Monitoring.Enabled {
		serveMetrics(cfg.Monitoring.Port, log)
	}

	store, err := snapshots.New(cfg, log, metrics)
	if err != nil {
		log.WithError(err).Fatal("failed to build snapshot store")
	}

	switch opts.Target {
	case TargetLatest:
		snap, err := store.LatestSuccessful(ctx)
		if err != nil {
			log.WithError(err).Fatal("failed to resolve latest snapshot")
		}
		if snap == nil {
			log.Fatal("store holds no successful snapshot")
		}
		printJSON(log, snap)

	case TargetList:
		var filters *snapshots.ListFilters
		if opts.Status != "" {
			filters = &snapshots.ListFilters{Status: entsnapshots.Status(opts.Status)}
		}
		metas, err := store.ListSnapshots(ctx, opts.Limit, filters)
		if err != nil {
			log.WithError(err).Fatal("failed to list snapshots")
		}
		printJSON(log, metas)

	case TargetShow:
		requireSnapshot(log, opts)
		if opts.Entity != "" {
			rec, err := store.ReadEntity(ctx, opts.Snapshot, opts.Entity)
			if err != nil {
				log.WithError(err).Fatal("failed to read district record")
			}
			if rec == nil {
				log.WithField("snapshot_id", opts.Snapshot).WithField("entity_id", opts.Entity).
					Fatal("district record not present in this snapshot")
			}
			printJSON(log, rec)
			return
		}
		snap, err := store.ReconstructSnapshot(ctx, opts.Snapshot)
		if err != nil {
			log.WithError(err).Fatal("failed to reconstruct snapshot")
		}
		if snap == nil {
			log.WithField("snapshot_id", opts.Snapshot).Fatal("snapshot does not exist")
		}
		printJSON(log, snap)

	case TargetVerify:
		requireSnapshot(log, opts)
		report, err := store.CheckVersionCompatibility(ctx, opts.Snapshot)
		if err != nil {
			log.WithError(err).Fatal("failed to verify snapshot")
		}
		printJSON(log, report)
		if !report.Compatible {
			os.Exit(1)
		}

	case TargetAwait:
		snap, err := awaitSuccessful(ctx, store, opts.AwaitTimeout)
		if err != nil {
			log.WithError(err).Fatal("no successful snapshot appeared in time")
		}
		printJSON(log, snap)

	case TargetDelete:
		requireSnapshot(log, opts)
		if err := store.Delete(ctx, opts.Snapshot); err != nil {
			log.WithError(err).Fatal("failed to delete snapshot")
		}
		log.WithField("snapshot_id", opts.Snapshot).Info("snapshot deleted")

	default:
		log.Fatal("--target empty or unknown")
	}
}

// awaitSuccessful polls until the store resolves a successful snapshot,
// backing off exponentially. Meant for pipeline steps that start right
// after the nightly refresh is kicked off.
func awaitSuccessful(ctx context.Context, store *snapshots.Store,
	timeout time.Duration,
) (*entsnapshots.Snapshot, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = timeout

	var found *entsnapshots.Snapshot
	operation := func() error {
		snap, err := store.LatestSuccessful(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if snap == nil {
			return errors.New("no successful snapshot yet")
		}
		found = snap
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return found, nil
}

func serveMetrics(port int, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	enterrors.GoWrapper(func() {
		log.WithField("action", "monitoring").WithField("port", port).
			Info("serving prometheus metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics endpoint failed")
		}
	}, log)
}

func requireSnapshot(log logrus.FieldLogger, opts Options) {
	if opts.Snapshot == "" {
		log.Fatalf("--target %s requires --snapshot", opts.Target)
	}
}

func printJSON(log logrus.FieldLogger, v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Fatal("failed to render output")
	}
}

// logger sets up the logging config of the process.
//
// Defaults to log level info and json format
func logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if os.Getenv("LOG_FORMAT") != "text" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "trace":
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}
