// Package insights turns raw shuttle records into demand statistics and
// recommendations. AI generated results are preferred; a deterministic
// fallback is always available when the model cannot be used.
package insights

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jengzang/shuttle-backend-go/internal/models"
	"github.com/jengzang/shuttle-backend-go/internal/spatial"
	"github.com/jengzang/shuttle-backend-go/internal/stats"
)

// UnknownRoute is the bucket for records without a known route id
const UnknownRoute = "unknown"

// DaysPerWeek is the divisor used for per-day averages over a week of history
const DaysPerWeek = 7

// LocationSnapMeters is the maximum distance for snapping a boarding position to a known location
const LocationSnapMeters = 250.0

// RoutePerformance holds per-route boarding metrics
type RoutePerformance struct {
	TotalBoardings int     `json:"totalBoardings"`
	AvgPerDay      int     `json:"avgPerDay"`
	Utilization    float64 `json:"utilization"` // boardings per scheduled departure
}

// Stats is the aggregated view of a set of usage records
type Stats struct {
	RouteDemand      map[string]int              `json:"routeDemand"`
	TimeSlotDemand   map[string]int              `json:"timeSlotDemand"`
	RoutePerformance map[string]RoutePerformance `json:"routePerformance"`
	LocationDemand   map[string]int              `json:"locationDemand"`
}

type aggregateOptions struct {
	loc       *time.Location
	locations []models.Location
}

// AggregateOption customizes Aggregate
type AggregateOption func(*aggregateOptions)

// WithLocation sets the time zone used to derive the hour of each record
func WithLocation(loc *time.Location) AggregateOption {
	return func(o *aggregateOptions) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithKnownLocations enables per-location demand counting
func WithKnownLocations(locations []models.Location) AggregateOption {
	return func(o *aggregateOptions) {
		o.locations = locations
	}
}

// Aggregate computes route, hourly and location demand plus per-route performance.
// It has no side effects and never fails; malformed timestamps count as hour 0.
func Aggregate(records []models.UsageRecord, routes []models.RouteDescriptor, opts ...AggregateOption) Stats {
	o := aggregateOptions{loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}

	known := make(map[string]models.RouteDescriptor, len(routes))
	for _, r := range routes {
		if r.ID != "" {
			known[r.ID] = r
		}
	}
	locationNames := make(map[string]string, len(o.locations))
	for _, l := range o.locations {
		locationNames[l.ID] = l.Name
	}

	s := Stats{
		RouteDemand:      make(map[string]int),
		TimeSlotDemand:   make(map[string]int),
		RoutePerformance: make(map[string]RoutePerformance, len(routes)),
		LocationDemand:   make(map[string]int),
	}

	for _, rec := range records {
		routeID := strings.TrimSpace(rec.RouteID)
		if _, ok := known[routeID]; !ok {
			routeID = UnknownRoute
		}
		s.RouteDemand[routeID]++

		hour := 0
		if ts, ok := ParseTimestamp(rec.Timestamp, o.loc); ok {
			hour = ts.In(o.loc).Hour()
		}
		s.TimeSlotDemand[HourSlot(hour)]++

		if name := locationFor(rec, locationNames, o.locations); name != "" {
			s.LocationDemand[name]++
		}
	}

	for id, r := range known {
		total := s.RouteDemand[id]
		perf := RoutePerformance{
			TotalBoardings: total,
			AvgPerDay:      int(stats.Round(float64(total)/DaysPerWeek, 0)),
		}
		if n := len(r.Schedule); n > 0 {
			perf.Utilization = stats.Round(float64(total)/float64(n), 2)
		}
		s.RoutePerformance[id] = perf
	}

	return s
}

func locationFor(rec models.UsageRecord, names map[string]string, locations []models.Location) string {
	if rec.LocationID != "" {
		if name, ok := names[rec.LocationID]; ok && name != "" {
			return name
		}
	}
	if rec.HasCoordinates() {
		if loc, ok := spatial.NearestLocation(*rec.Latitude, *rec.Longitude, locations, LocationSnapMeters); ok {
			return loc.Name
		}
	}
	return ""
}

// HourSlot returns the "HH:00-HH:00" label for an hour of day
func HourSlot(hour int) string {
	return fmt.Sprintf("%02d:00-%02d:00", hour, hour+1)
}

var zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}

// localLayouts carry no zone and are read as wall-clock time in the aggregation location
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp parses the timestamp formats produced by the boarding subsystem.
// Numeric values are unix seconds, or unix milliseconds when larger than 1e11.
// Layouts without a zone are interpreted in loc (UTC when nil).
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Summarize computes system counters from the records in a snapshot
func Summarize(data *models.AnalyticsData) models.SystemCounters {
	var c models.SystemCounters
	if data == nil {
		return c
	}

	c.TotalRoutes = len(data.Routes)
	for _, r := range data.Routes {
		if r.IsActive() {
			c.ActiveRoutes++
		}
	}

	c.TotalShuttles = len(data.Shuttles)
	for _, s := range data.Shuttles {
		if s.Status == models.StatusActive {
			c.ActiveShuttles++
		}
	}

	for _, u := range data.Users {
		switch u.Role {
		case models.RoleDriver:
			c.TotalDrivers++
			if u.Status == "" || u.Status == models.StatusActive {
				c.ActiveDrivers++
			}
		case models.RoleStudent:
			c.TotalStudents++
		}
	}

	c.TotalBoardings = len(data.BoardingRecords)
	for _, card := range data.DigitalTravelCards {
		if card.Status == models.StatusActive {
			c.ActiveCards++
		}
	}

	return c
}

// Counters returns the snapshot counters, computing them when the snapshot carries none
func Counters(data *models.AnalyticsData) models.SystemCounters {
	if data == nil {
		return models.SystemCounters{}
	}
	if data.Counters.IsZero() {
		return Summarize(data)
	}
	return data.Counters
}
