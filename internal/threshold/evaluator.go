// Package threshold classifies readings into status bands and records
// threshold violations.
package threshold

import "github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"

// Violation describes a breached bound.
type Violation struct {
	Reason    domain.TriggerReason
	Threshold float64
}

// Classify returns the band whose inclusive range holds v. Bands are
// checked in ascending order, so a value on a shared boundary belongs to
// the lower band: with normal [10,30] and warm [30,40], 30 is normal.
// Values outside every range clamp to the nearest band; a value in a gap
// between ranges belongs to the highest band starting below it.
func Classify(v float64, ranges [5]domain.BandRange) domain.StatusBand {
	for i, r := range ranges {
		if v >= r.Min && v <= r.Max {
			return domain.Bands[i]
		}
	}
	band := domain.BandCold
	for i, r := range ranges {
		if r.Min <= v {
			band = domain.Bands[i]
		}
	}
	return band
}

// Evaluate classifies v and reports a violation when checking is enabled,
// the bound's auto-save flag is set and v is strictly beyond the bound.
func Evaluate(v float64, cfg domain.ThresholdConfiguration) (domain.StatusBand, *Violation) {
	band := Classify(v, cfg.Ranges)
	if !cfg.CheckEnabled {
		return band, nil
	}
	if cfg.Upper != nil && cfg.AutoSaveUpper && v > *cfg.Upper {
		return band, &Violation{Reason: domain.TriggerUpperThreshold, Threshold: *cfg.Upper}
	}
	if cfg.Lower != nil && cfg.AutoSaveLower && v < *cfg.Lower {
		return band, &Violation{Reason: domain.TriggerLowerThreshold, Threshold: *cfg.Lower}
	}
	return band, nil
}
