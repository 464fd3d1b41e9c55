package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/robertof/go-treadfit/ble"
	"github.com/robertof/go-treadfit/checkpoint"
	"github.com/robertof/go-treadfit/device/treadmill"
	"github.com/robertof/go-treadfit/export"
	"github.com/robertof/go-treadfit/metrics"
	"github.com/robertof/go-treadfit/session"
	"github.com/robertof/go-treadfit/utils"
)

var cfg config

func main() {
	zerolog.DurationFieldUnit = time.Second
	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
	})

	root := &cobra.Command{
		Use:   "treadfit",
		Short: "Treadmill session recorder and workout exporter",
		Long: `treadfit keeps a Bluetooth treadmill connected, exposes its live status and saves
periodic checkpoints. Checkpoints are later rebuilt into workouts and exported to Fitbit
and/or FIT files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			if cfg, err = loadConfig(cmd); err != nil {
				return err
			}

			if cfg.Trace || os.Getenv("TRACE") != "" {
				zerolog.SetGlobalLevel(zerolog.TraceLevel)
			} else if cfg.Debug || os.Getenv("DEBUG") != "" {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}

			return nil
		},
	}

	registerFlags(root)

	root.AddCommand(runCmd(), exportCmd(), discoverCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Export pending runs, then record the treadmill until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return run(ctx)
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Run one export pass over the checkpoint files and quit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			report, err := exportPass(ctx, checkpoint.New(cfg.DataDir), newFitbit())

			if err != nil {
				return err
			}

			if failed := report.Count(export.OutcomeFailed) + report.Count(export.OutcomeInvalid); failed > 0 {
				return errors.New("some checkpoint files could not be exported, see the logs above")
			}

			return nil
		},
	}
}

func run(ctx context.Context) error {
	log.Info().
		Str("BindAddr", cfg.BindAddress).
		Str("DeviceName", cfg.DeviceName).
		Str("DataDir", cfg.DataDir).
		Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
		Msg("Starting with the specified configuration")

	log.Debug().
		Array("InitSequence", utils.HexArray(treadmill.InitSequence())).
		Array("PollSequence", utils.HexArray(treadmill.PollSequence())).
		Msg("Vendor command tables")

	registry := prometheus.NewRegistry()

	ble.RegisterMetrics(registry)
	checkpoint.RegisterMetrics(registry)
	session.RegisterMetrics(registry)
	export.RegisterMetrics(registry)

	store := checkpoint.New(cfg.DataDir)
	fb := newFitbit()

	if !cfg.NoExport {
		// the pass runs before the session starts appending, so no file is still growing.
		if _, err := exportPass(ctx, store, fb); err != nil {
			log.Error().Err(err).Msg("Export pass failed")
		}
	}

	if ctx.Err() != nil {
		return nil
	}

	bleHandle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, ble.FlagScanTypeActive)

	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize Bluetooth device")
		return err
	}

	defer bleHandle.Stop()

	sess := session.New(&treadmill.Transport{Handle: bleHandle}, store, cfg.sessionOptions())

	if fb != nil {
		go func() {
			if w, err := fb.Weight(ctx); err == nil {
				log.Info().Float64("WeightKg", w).Msg("User weight loaded")
				sess.Tracker().SetWeight(w)
			} else {
				log.Debug().Err(err).Msg("Could not load user weight, keeping the configured one")
			}

			saveToken(fb)
		}()
	}

	live := metrics.FromSession(sess)
	metrics.RegisterCollector(live, registry)

	srv := &http.Server{
		Addr:              cfg.BindAddress,
		Handler:           metrics.NewRouter(registry, live),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sess.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Str("ListenAddress", cfg.BindAddress).Msg("Starting Prometheus server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Unable to bind on requested address")
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	log.Info().Msg("Shut down")

	return err
}

// newFitbit returns nil without a complete set of credentials. A token saved by an
// earlier run takes precedence over the configured one.
func newFitbit() *export.Fitbit {
	creds := cfg.Fitbit

	if !creds.Complete() {
		return nil
	}

	tok, ok, err := export.LoadToken(cfg.TokenFile)

	if err != nil {
		log.Warn().Err(err).Msg("Ignoring saved Fitbit token")
	} else if ok {
		creds = creds.WithToken(tok)
	}

	return export.NewFitbit(creds)
}

// saveToken keeps a refreshed token for the next run: the old refresh token is no longer
// valid.
func saveToken(fb *export.Fitbit) {
	tok, refreshed := fb.Token()

	if !refreshed {
		return
	}

	if err := export.SaveToken(cfg.TokenFile, tok); err != nil {
		log.Error().Err(err).Msg("Failed to save refreshed Fitbit token")
		return
	}

	log.Info().Str("Path", cfg.TokenFile).Msg("Saved refreshed Fitbit token")
}

func exportPass(ctx context.Context, store *checkpoint.Store, fb *export.Fitbit) (export.Report, error) {
	var sinks export.Multi

	// local sinks first: they can be repeated if a later one fails.
	if cfg.FitArchiveDir != "" {
		sinks = append(sinks, &export.FitArchive{Dir: cfg.FitArchiveDir})
	}

	if fb != nil {
		sinks = append(sinks, fb)
	}

	if len(sinks) == 0 {
		log.Info().Msg("Skipping export: Fitbit credentials not found and no FIT archive configured")
		return export.Report{}, nil
	}

	log.Info().Array("Sinks", utils.ToZeroLogArray([]export.Exporter(sinks))).Msg("Running export pass")

	p := &export.Pipeline{
		Store:           store,
		Exporter:        sinks,
		DefaultWeightKg: cfg.WeightKg,
	}

	if fb != nil {
		p.Weight = fb
	} else {
		// runs stay pending until they reach the activity log.
		p.KeepSources = true
		log.Info().Msg("Fitbit credentials not found, keeping checkpoint files after archiving")
	}

	report, err := p.Run(ctx)

	if fb != nil {
		saveToken(fb)
	}

	return report, err
}
