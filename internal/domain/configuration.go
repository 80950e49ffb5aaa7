package domain

import (
	"errors"
	"fmt"
)

// Scope is the closed set of targets a configuration can apply to:
// DeviceScope, ContainmentScope or GlobalScope.
type Scope interface {
	Kind() ScopeKind
	// Priority orders scopes for resolution; lower wins.
	Priority() int
	isScope()
}

type ScopeKind string

const (
	ScopeDevice      ScopeKind = "Device"
	ScopeContainment ScopeKind = "Containment"
	ScopeGlobal      ScopeKind = "Global"
)

type DeviceScope struct{ DeviceID int64 }

func (DeviceScope) Kind() ScopeKind { return ScopeDevice }
func (DeviceScope) Priority() int   { return 0 }
func (DeviceScope) isScope()        {}

type ContainmentScope struct{ ContainmentID int64 }

func (ContainmentScope) Kind() ScopeKind { return ScopeContainment }
func (ContainmentScope) Priority() int   { return 1 }
func (ContainmentScope) isScope()        {}

type GlobalScope struct{}

func (GlobalScope) Kind() ScopeKind { return ScopeGlobal }
func (GlobalScope) Priority() int   { return 2 }
func (GlobalScope) isScope()        {}

// ParseScope builds a Scope from its stored (kind, target id) pair.
func ParseScope(kind string, targetID *int64) (Scope, error) {
	switch ScopeKind(kind) {
	case ScopeDevice:
		if targetID == nil {
			return nil, fmt.Errorf("device scope without target id")
		}
		return DeviceScope{DeviceID: *targetID}, nil
	case ScopeContainment:
		if targetID == nil {
			return nil, fmt.Errorf("containment scope without target id")
		}
		return ContainmentScope{ContainmentID: *targetID}, nil
	case ScopeGlobal:
		return GlobalScope{}, nil
	default:
		return nil, fmt.Errorf("unknown scope kind %q", kind)
	}
}

// ScopeTarget returns the stored target id of s, nil for GlobalScope.
func ScopeTarget(s Scope) *int64 {
	switch v := s.(type) {
	case DeviceScope:
		id := v.DeviceID
		return &id
	case ContainmentScope:
		id := v.ContainmentID
		return &id
	default:
		return nil
	}
}

// AllowedIntervals are the only sampling intervals, in minutes.
var AllowedIntervals = []int{1, 15, 30, 60, 360, 720, 1440}

func IsAllowedInterval(minutes int) bool {
	for _, m := range AllowedIntervals {
		if m == minutes {
			return true
		}
	}
	return false
}

type IntervalConfiguration struct {
	ID              int64
	Scope           Scope
	IntervalMinutes int
	Enabled         bool
}

type StatusBand string

const (
	BandCold     StatusBand = "cold"
	BandNormal   StatusBand = "normal"
	BandWarm     StatusBand = "warm"
	BandHot      StatusBand = "hot"
	BandCritical StatusBand = "critical"
)

// Bands lists the status bands in ascending order.
var Bands = [5]StatusBand{BandCold, BandNormal, BandWarm, BandHot, BandCritical}

// BandRange is an inclusive [Min, Max] range.
type BandRange struct {
	Min float64
	Max float64
}

type ThresholdConfiguration struct {
	ID     int64
	Scope  Scope
	Metric Metric
	// Ranges are indexed like Bands.
	Ranges              [5]BandRange
	Upper               *float64
	Lower               *float64
	CheckEnabled        bool
	AutoSaveUpper       bool
	AutoSaveLower       bool
	NotificationEnabled bool
	Enabled             bool
}

var (
	ErrBandOrder      = errors.New("band ranges are not monotonically non-decreasing")
	ErrThresholdOrder = errors.New("upper threshold must exceed lower threshold")
)

// Validate checks band monotonicity and that Upper exceeds Lower.
func (c ThresholdConfiguration) Validate() error {
	for i, r := range c.Ranges {
		if r.Min > r.Max {
			return fmt.Errorf("%w: %s min %.2f > max %.2f", ErrBandOrder, Bands[i], r.Min, r.Max)
		}
		if i == 0 {
			continue
		}
		prev := c.Ranges[i-1]
		if r.Min < prev.Min || r.Max < prev.Max {
			return fmt.Errorf("%w: %s below %s", ErrBandOrder, Bands[i], Bands[i-1])
		}
	}
	if c.Upper != nil && c.Lower != nil && *c.Upper <= *c.Lower {
		return fmt.Errorf("%w: %.2f <= %.2f", ErrThresholdOrder, *c.Upper, *c.Lower)
	}
	return nil
}
