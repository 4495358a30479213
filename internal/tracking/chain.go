package tracking

import (
	"sort"
	"time"

	"github.com/kusalkrp/bus-tracking-api/internal/models"
)

// Chain is the ordered segment list of a route with cumulative time and
// distance prefix sums. A Chain is immutable once built.
type Chain struct {
	segments []models.Segment
	// timeBefore[i] and distBefore[i] hold the totals of segments [0, i)
	timeBefore []float64
	distBefore []float64
	totalHours float64
	totalKm    float64
}

// NewChain builds a chain from segments in any order
func NewChain(segments []models.Segment) *Chain {
	ordered := make([]models.Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SegmentOrder < ordered[j].SegmentOrder
	})

	c := &Chain{
		segments:   ordered,
		timeBefore: make([]float64, len(ordered)),
		distBefore: make([]float64, len(ordered)),
	}
	for i, seg := range ordered {
		c.timeBefore[i] = c.totalHours
		c.distBefore[i] = c.totalKm
		c.totalHours += seg.EstimatedTimeHrs
		c.totalKm += seg.DistanceKm
	}
	return c
}

func (c *Chain) Len() int { return len(c.segments) }

func (c *Chain) TotalHours() float64 { return c.totalHours }

func (c *Chain) TotalKm() float64 { return c.totalKm }

// At returns the i-th segment in travel order
func (c *Chain) At(i int) models.Segment { return c.segments[i] }

// Segments returns a copy of the ordered segments
func (c *Chain) Segments() []models.Segment {
	out := make([]models.Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

// HoursBefore returns the scheduled hours of all segments preceding index i
func (c *Chain) HoursBefore(i int) float64 { return c.timeBefore[i] }

// KmBefore returns the distance of all segments preceding index i
func (c *Chain) KmBefore(i int) float64 { return c.distBefore[i] }

// IndexOf returns the position of the segment with the given id, or -1
func (c *Chain) IndexOf(segmentID int64) int {
	for i, seg := range c.segments {
		if seg.ID == segmentID {
			return i
		}
	}
	return -1
}

// Locate returns the index of the segment covering elapsedHours since
// departure. Segment k covers [before(k), before(k)+time(k)). Negative
// elapsed time maps to the first segment and anything past the end maps to
// the last. Returns -1 for an empty chain.
func (c *Chain) Locate(elapsedHours float64) int {
	if len(c.segments) == 0 {
		return -1
	}
	// First segment whose end lies strictly after elapsedHours
	idx := sort.Search(len(c.segments), func(i int) bool {
		return elapsedHours < c.timeBefore[i]+c.segments[i].EstimatedTimeHrs
	})
	if idx == len(c.segments) {
		return len(c.segments) - 1
	}
	return idx
}

// ScheduledArrivals returns, for each segment in travel order, departure
// plus the cumulative scheduled time through the end of that segment.
func (c *Chain) ScheduledArrivals(departure time.Time) []time.Time {
	out := make([]time.Time, len(c.segments))
	for i, seg := range c.segments {
		out[i] = departure.Add(HoursToDuration(c.timeBefore[i] + seg.EstimatedTimeHrs))
	}
	return out
}

// HoursToDuration converts fractional hours to a duration
func HoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
