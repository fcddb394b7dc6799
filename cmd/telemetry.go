package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/khanhnv2901/cspgen/internal/resource"
	consts "github.com/khanhnv2901/cspgen/internal/shared/constants"
)

type telemetryRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	Command         string    `json:"command"`
	HTMLFiles       int       `json:"html_files"`
	FilesParsed     int       `json:"files_parsed"`
	Skipped         int       `json:"skipped"`
	References      int       `json:"references"`
	SuccessRate     float64   `json:"success_rate"`
	DurationSeconds float64   `json:"duration_seconds"`
	AvgDurationFile float64   `json:"avg_duration_per_file"`
}

// recordTelemetry appends one local, never-transmitted usage record for a scan.
func recordTelemetry(appCtx *AppContext, command string, stats resource.Stats, duration time.Duration) error {
	successRate := 0.0
	if stats.HTMLFiles > 0 {
		successRate = (float64(stats.FilesParsed) / float64(stats.HTMLFiles)) * 100
	}

	avgDuration := 0.0
	if stats.FilesParsed > 0 {
		avgDuration = duration.Seconds() / float64(stats.FilesParsed)
	}

	record := telemetryRecord{
		Timestamp:       time.Now().UTC(),
		Command:         command,
		HTMLFiles:       stats.HTMLFiles,
		FilesParsed:     stats.FilesParsed,
		Skipped:         stats.Skipped(),
		References:      stats.References,
		SuccessRate:     successRate,
		DurationSeconds: duration.Seconds(),
		AvgDurationFile: avgDuration,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	f, err := appCtx.Fs.OpenFile(getTelemetryPath(appCtx.DataDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, consts.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}

	return nil
}
