package integrity

import (
	"context"
	"fmt"
	"log"
	"time"

	"notesync-engine/internal/domain"
)

type Health string

const (
	HealthHealthy  Health = "HEALTHY"
	HealthWarning  Health = "WARNING"
	HealthCritical Health = "CRITICAL"
	HealthError    Health = "ERROR"
)

const criticalInvalidThreshold = 10

// ScanReport aggregates one full validation pass.
type ScanReport struct {
	EntityType domain.EntityType `json:"entity_type"`
	Scanned    int               `json:"scanned"`
	Valid      int               `json:"valid"`
	Invalid    int               `json:"invalid"`
	Corrected  int               `json:"corrected"`
	Skipped    int               `json:"skipped"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// ScanAll validates every note, optionally applying suggested corrections.
// Individual entity failures are counted, not fatal.
func (c *Checker) ScanAll(ctx context.Context, autoCorrect bool) (*ScanReport, error) {
	report := &ScanReport{EntityType: domain.EntityNote, StartedAt: time.Now()}

	notes, err := c.notes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate notes: %w", err)
	}

	for _, note := range notes {
		result, err := c.ValidateNote(ctx, note)
		if err != nil {
			report.Skipped++
			log.Printf("integrity scan: skipping note %s: %v", note.ID, err)
			continue
		}
		report.Scanned++

		if result.Valid {
			report.Valid++
			continue
		}
		report.Invalid++

		if autoCorrect && len(result.Suggestions) > 0 {
			fixed, _, err := c.ApplyCorrections(ctx, note, result.Suggestions)
			if err != nil {
				log.Printf("integrity scan: correction failed for note %s: %v", note.ID, err)
				continue
			}
			if err := c.notes.Update(ctx, fixed); err != nil {
				log.Printf("integrity scan: failed to persist corrected note %s: %v", note.ID, err)
				continue
			}
			report.Corrected++
		}
	}

	report.FinishedAt = time.Now()
	return report, nil
}

// Monitor polls the invalid-entity count and reports a health
// classification on the returned channel. The poll interval doubles on
// probe errors up to 4x and resets on success.
func (c *Checker) Monitor(ctx context.Context, interval time.Duration) <-chan Health {
	out := make(chan Health, 1)

	go func() {
		defer close(out)

		current := interval
		timer := time.NewTimer(current)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			health := c.probeHealth(ctx)
			if health == HealthError {
				if current < 4*interval {
					current *= 2
				}
			} else {
				current = interval
			}

			select {
			case out <- health:
			case <-ctx.Done():
				return
			}

			timer.Reset(current)
		}
	}()

	return out
}

func (c *Checker) probeHealth(ctx context.Context) Health {
	invalid, err := c.records.CountInvalid(ctx)
	if err != nil {
		log.Printf("integrity monitor: probe failed: %v", err)
		return HealthError
	}

	switch {
	case invalid == 0:
		return HealthHealthy
	case invalid < criticalInvalidThreshold:
		return HealthWarning
	default:
		return HealthCritical
	}
}
