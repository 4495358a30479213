package tracking

import (
	"math"
	"strconv"
	"time"

	"github.com/kusalkrp/bus-tracking-api/internal/models"
)

// Blend weights and speed-band thresholds used by Estimate
const (
	TimeWeight     = 0.7
	DistanceWeight = 0.3
	SlowFactor     = 0.8
	FastFactor     = 1.2
)

// Progress holds the derived fields of a fix. A nil field is unknown.
type Progress struct {
	CurrentSegmentID             *int64
	SegmentProgressPercentage    *float64
	TotalRouteProgressPercentage *float64
	EstimatedDelayMinutes        *float64
}

// TripContext is everything about a trip the estimator needs
type TripContext struct {
	Departure time.Time
	// RouteHours and RouteKm come from the route record. When zero the chain
	// totals are used instead.
	RouteHours float64
	RouteKm    float64
	Chain      *Chain
}

// Observation is the raw part of a fix
type Observation struct {
	Timestamp time.Time
	SpeedKmh  *float64
}

// Estimate derives segment, progress and delay from elapsed time, optionally
// blended with distance covered at the reported speed.
func Estimate(trip TripContext, obs Observation) Progress {
	var p Progress

	chain := trip.Chain
	if chain == nil {
		chain = NewChain(nil)
	}

	total := trip.RouteHours
	if total <= 0 {
		total = chain.TotalHours()
	}
	if total <= 0 {
		return p
	}

	elapsed := obs.Timestamp.Sub(trip.Departure).Hours()
	expected := elapsed / total * 100
	p.TotalRouteProgressPercentage = ptr(round2(clamp(expected, 0, 100)))

	// Position-based progress; equals the time-based progress unless speed pulls it
	actual := clamp(expected, 0, 100)

	if idx := chain.Locate(elapsed); idx >= 0 {
		seg := chain.At(idx)
		before := chain.HoursBefore(idx)

		segProgress := ratio(elapsed-before, seg.EstimatedTimeHrs)
		if obs.SpeedKmh != nil {
			covered := *obs.SpeedKmh * math.Max(elapsed, 0)
			distProgress := ratio(covered-chain.KmBefore(idx), seg.DistanceKm)
			segProgress = TimeWeight*segProgress + DistanceWeight*distProgress
		}

		p.CurrentSegmentID = ptr(seg.ID)
		p.SegmentProgressPercentage = ptr(round2(segProgress))
		actual = clamp((before+segProgress/100*seg.EstimatedTimeHrs)/total*100, 0, 100)
	}

	// Reports before departure carry no delay; overshoot past the end does
	delay := (math.Max(expected, 0) - actual) / 100 * total * 60
	if obs.SpeedKmh != nil {
		delay += speedCorrection(*obs.SpeedKmh, trip, total, actual)
	}
	p.EstimatedDelayMinutes = ptr(roundMinutes(delay))

	return p
}

// speedCorrection adds delay when the bus runs well below the average speed the
// schedule requires, and removes delay when it runs well above it.
func speedCorrection(speed float64, trip TripContext, totalHours, actualProgress float64) float64 {
	km := trip.RouteKm
	if km <= 0 && trip.Chain != nil {
		km = trip.Chain.TotalKm()
	}
	if km <= 0 {
		return 0
	}
	avg := km / totalHours
	remainingHours := totalHours * (1 - actualProgress/100)

	switch {
	case speed < SlowFactor*avg:
		return (avg - speed) / avg * remainingHours * 60
	case speed > FastFactor*avg:
		return -(speed - avg) / avg * remainingHours * 60
	}
	return 0
}

// Merge prefers each client-supplied field and falls back to the server value
func Merge(client, server Progress) Progress {
	out := server
	if client.CurrentSegmentID != nil {
		out.CurrentSegmentID = client.CurrentSegmentID
	}
	if client.SegmentProgressPercentage != nil {
		out.SegmentProgressPercentage = client.SegmentProgressPercentage
	}
	if client.TotalRouteProgressPercentage != nil {
		out.TotalRouteProgressPercentage = client.TotalRouteProgressPercentage
	}
	if client.EstimatedDelayMinutes != nil {
		out.EstimatedDelayMinutes = client.EstimatedDelayMinutes
	}
	return out
}

// Overridden reports whether any field of p is set
func (p Progress) Overridden() bool {
	return p.CurrentSegmentID != nil || p.SegmentProgressPercentage != nil ||
		p.TotalRouteProgressPercentage != nil || p.EstimatedDelayMinutes != nil
}

// Describe builds the current segment summary for a merged progress value.
// Returns nil when the segment is unknown or not part of the chain.
func Describe(chain *Chain, p Progress) *models.SegmentProgress {
	if chain == nil || p.CurrentSegmentID == nil {
		return nil
	}
	idx := chain.IndexOf(*p.CurrentSegmentID)
	if idx < 0 {
		return nil
	}
	seg := chain.At(idx)

	sp := &models.SegmentProgress{
		ID:           seg.ID,
		SegmentOrder: seg.SegmentOrder,
		FromLocation: seg.FromLocation,
		ToLocation:   seg.ToLocation,
	}
	if p.SegmentProgressPercentage != nil {
		sp.ProgressPercentage = *p.SegmentProgressPercentage
	}
	if p.EstimatedDelayMinutes != nil {
		sp.EstimatedDelayMinutes = *p.EstimatedDelayMinutes
	}
	sp.ProgressDescription = formatPercent(sp.ProgressPercentage) + "% on " + seg.FromLocation + "-" + seg.ToLocation
	return sp
}

// ratio returns part/whole as a percentage clamped to [0, 100]
func ratio(part, whole float64) float64 {
	if whole <= 0 {
		return 100
	}
	return clamp(part/whole*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// roundMinutes rounds to whole minutes without producing negative zero
func roundMinutes(v float64) float64 {
	r := math.Round(v)
	if r == 0 {
		return 0
	}
	return r
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ptr[T any](v T) *T { return &v }
