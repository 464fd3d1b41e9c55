package export

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tormoder/fit"
)

// FitArchive writes every run as a FIT activity file, so it can be imported by any
// training log. Files are named from the run start time and overwritten on re-export.
type FitArchive struct {
	Dir string
}

func (a *FitArchive) String() string {
	return "fit-archive"
}

func (a *FitArchive) PathFor(act Activity) string {
	return filepath.Join(a.Dir, "treadmill_"+act.Start.Local().Format("20060102T150405")+".fit")
}

func (a *FitArchive) Export(ctx context.Context, act Activity) error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	path := a.PathFor(act)

	tmp, err := os.CreateTemp(a.Dir, ".treadmill_*.fit.tmp")

	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	defer os.Remove(tmp.Name())

	if err := EncodeFIT(tmp, act); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move archive file in place: %w", err)
	}

	log.Info().Str("Path", path).Msg("Archived run as FIT activity")

	return nil
}

// EncodeFIT writes the run as a treadmill running session with one record per snapshot.
func EncodeFIT(w io.Writer, act Activity) error {
	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)

	if err != nil {
		return errors.Wrap(err, "fit: failed to create file")
	}

	file.FileId.TimeCreated = act.Start
	file.FileId.Manufacturer = fit.ManufacturerDevelopment

	activity, err := file.Activity()

	if err != nil {
		return errors.Wrap(err, "fit: failed to access activity")
	}

	end := act.Start.Add(time.Duration(act.DurationSeconds * float64(time.Second)))

	start := fit.NewEventMsg()
	start.Timestamp = act.Start
	start.Event = fit.EventTimer
	start.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, start)

	origin := 0.0

	if len(act.Snapshots) > 0 {
		origin = act.Snapshots[0].DistanceKm
	}

	for _, s := range act.Snapshots {
		rec := fit.NewRecordMsg()
		rec.Timestamp = s.Timestamp
		rec.Speed = scaled16(s.SpeedKph/3.6, 1000)

		// counters restart on a reset, the archive keeps what the machine reported.
		if d := s.DistanceKm - origin; d >= 0 {
			rec.Distance = scaled32(d*1000, 100)
		}

		activity.Records = append(activity.Records, rec)
	}

	stop := fit.NewEventMsg()
	stop.Timestamp = end
	stop.Event = fit.EventTimer
	stop.EventType = fit.EventTypeStopAll
	activity.Events = append(activity.Events, stop)

	session := fit.NewSessionMsg()
	session.Timestamp = end
	session.StartTime = act.Start
	session.Event = fit.EventSession
	session.EventType = fit.EventTypeStop
	session.Sport = fit.SportRunning
	session.SubSport = fit.SubSportTreadmill
	session.TotalElapsedTime = scaled32(act.DurationSeconds, 1000)
	session.TotalTimerTime = scaled32(act.DurationSeconds, 1000)
	session.TotalDistance = scaled32(act.DistanceKm*1000, 100)
	session.TotalCalories = uint16(math.Min(act.CaloriesKcal, math.MaxUint16-1))
	session.TotalAscent = uint16(math.Min(math.Max(act.ElevationGainM, 0), math.MaxUint16-1))
	session.AvgSpeed = scaled16(act.AvgSpeedKmh()/3.6, 1000)
	activity.Sessions = append(activity.Sessions, session)

	activity.Activity = fit.NewActivityMsg()
	activity.Activity.Timestamp = end
	activity.Activity.TotalTimerTime = session.TotalTimerTime
	activity.Activity.NumSessions = 1

	if err := fit.Encode(w, file, binary.LittleEndian); err != nil {
		return errors.Wrap(err, "fit: failed to encode activity")
	}

	return nil
}

// scaled16 and scaled32 apply a FIT field scale, saturating below the invalid value.
func scaled16(v, scale float64) uint16 {
	return uint16(math.Min(math.Max(v*scale, 0), math.MaxUint16-1))
}

func scaled32(v, scale float64) uint32 {
	return uint32(math.Min(math.Max(v*scale, 0), math.MaxUint32-1))
}
