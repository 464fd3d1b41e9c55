package export

import (
	"context"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-treadfit/checkpoint"
	"github.com/robertof/go-treadfit/device"
	"github.com/robertof/go-treadfit/energy"
	"github.com/robertof/go-treadfit/reconcile"
)

var filesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "treadfit_export_files_total",
	Help: "Checkpoint files processed by the export pass, by outcome.",
}, []string{"outcome"})

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(filesCounter)
}

type Outcome uint8

const (
	OutcomeExported Outcome = iota
	// OutcomeDiscarded is a run too short to be worth exporting. The file is deleted.
	OutcomeDiscarded
	// OutcomeEmpty is a file with no records at all. The file is deleted.
	OutcomeEmpty
	// OutcomeInProgress is a file whose only record is still being written. It is left
	// alone until the next pass.
	OutcomeInProgress
	// OutcomeInvalid is a file that could not be parsed. It is left in place for
	// inspection.
	OutcomeInvalid
	// OutcomeFailed is a run the sink refused. The file is kept for the next pass.
	OutcomeFailed
	// OutcomeArchived is a run the sinks accepted while the pipeline keeps its sources.
	// The file stays until a pass with KeepSources unset exports it.
	OutcomeArchived
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExported:
		return "Exported"
	case OutcomeDiscarded:
		return "Discarded"
	case OutcomeEmpty:
		return "Empty"
	case OutcomeInProgress:
		return "InProgress"
	case OutcomeInvalid:
		return "Invalid"
	case OutcomeFailed:
		return "Failed"
	case OutcomeArchived:
		return "Archived"
	default:
		panic("unknown Outcome value")
	}
}

type FileResult struct {
	Path    string
	Outcome Outcome
	Err     error
	Summary reconcile.Summary
}

type Report struct {
	Results  []FileResult
	WeightKg float64
}

func (r Report) Count(o Outcome) (n int) {
	for _, res := range r.Results {
		if res.Outcome == o {
			n += 1
		}
	}

	return n
}

type Pipeline struct {
	Store    *checkpoint.Store
	Exporter Exporter

	// Weight is optional. DefaultWeightKg is used when it's missing or fails.
	Weight          WeightSource
	DefaultWeightKg float64

	// KeepSources leaves exported day files in place, for sinks that are not the
	// activity log of record. Noise and empty files are still deleted.
	KeepSources bool
}

// Run makes one pass over every day file. Per-file failures end up in the report; the
// returned error is only set when the files could not be listed or ctx was canceled.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var report Report

	files, err := p.Store.Files()

	if err != nil {
		return report, err
	}

	if len(files) == 0 {
		log.Info().Msg("No checkpoint files to process")
		return report, nil
	}

	report.WeightKg = p.weight(ctx)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := p.process(ctx, path, report.WeightKg)
		filesCounter.WithLabelValues(res.Outcome.String()).Inc()

		ev := log.Info()

		if res.Err != nil {
			ev = log.Error().Err(res.Err)
		}

		ev.Str("Path", path).Stringer("Outcome", res.Outcome).Msg("Processed checkpoint file")

		report.Results = append(report.Results, res)
	}

	log.Info().
		Int("Files", len(report.Results)).
		Int("Exported", report.Count(OutcomeExported)).
		Int("Archived", report.Count(OutcomeArchived)).
		Int("Discarded", report.Count(OutcomeDiscarded)+report.Count(OutcomeEmpty)).
		Int("Failed", report.Count(OutcomeFailed)+report.Count(OutcomeInvalid)).
		Msg("Export pass finished")

	return report, nil
}

func (p *Pipeline) weight(ctx context.Context) float64 {
	fallback := p.DefaultWeightKg

	if fallback <= 0 {
		fallback = energy.DefaultWeightKg
	}

	if p.Weight == nil {
		return fallback
	}

	w, err := p.Weight.Weight(ctx)

	if err != nil || w <= 0 {
		log.Warn().Err(err).Float64("DefaultKg", fallback).Msg("Could not fetch user weight, using default")
		return fallback
	}

	log.Info().Float64("WeightKg", w).Msg("Fetched user weight")

	return w
}

func (p *Pipeline) process(ctx context.Context, path string, weightKg float64) FileResult {
	res := FileResult{Path: path}

	batch, err := p.Store.Load(path)

	if err != nil {
		res.Outcome, res.Err = OutcomeInvalid, err
		return res
	}

	if len(batch.Snapshots) == 0 {
		if batch.Partial {
			res.Outcome = OutcomeInProgress
			return res
		}

		res.Outcome, res.Err = OutcomeEmpty, p.Store.Remove(path)
		return res
	}

	res.Summary = reconcile.Reconstruct(batch.Snapshots, weightKg)

	if res.Summary.Resets > 0 {
		log.Warn().
			Str("Path", path).
			Int("Resets", res.Summary.Resets).
			Msg("Machine counters were reset during the day, exporting a single aggregate run")
	}

	run, _ := res.Summary.Run()

	if reconcile.Classify(res.Summary) == reconcile.VerdictDiscard {
		log.Info().
			Str("Path", path).
			Float64("DistanceKm", run.DistanceKm).
			Int("Samples", res.Summary.Samples).
			Msg("Run too short, discarding")

		res.Outcome, res.Err = OutcomeDiscarded, p.Store.Remove(path)
		return res
	}

	a := Activity{Segment: run, Snapshots: sorted(batch.Snapshots), Source: path}

	log.Info().Stringer("Activity", a).Msg("Exporting run")

	if err := p.Exporter.Export(ctx, a); err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	if p.KeepSources {
		res.Outcome = OutcomeArchived
		return res
	}

	res.Outcome, res.Err = OutcomeExported, p.Store.Remove(path)
	return res
}

func sorted(snapshots []device.Snapshot) []device.Snapshot {
	out := slices.Clone(snapshots)

	slices.SortStableFunc(out, func(a, b device.Snapshot) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return out
}
