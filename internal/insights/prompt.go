package insights

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jengzang/shuttle-backend-go/internal/models"
	"github.com/jengzang/shuttle-backend-go/internal/stats"
)

// TaskKind identifies a pipeline request type
type TaskKind string

const (
	TaskDemandPredictions     TaskKind = "demand-predictions"
	TaskScheduleOptimizations TaskKind = "schedule-optimizations"
	TaskChat                  TaskKind = "chat"
)

// ChatWordLimit is the maximum length of a chat answer
const ChatWordLimit = 60

// PromptInput carries everything a prompt is built from
type PromptInput struct {
	Kind     TaskKind
	Data     *models.AnalyticsData
	Stats    Stats
	Question string
	Now      time.Time
}

// BuildPrompt renders the prompt for a task. Missing data is described, never fatal.
func BuildPrompt(in PromptInput) string {
	data := in.Data
	if data == nil {
		data = &models.AnalyticsData{}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder
	switch in.Kind {
	case TaskDemandPredictions:
		writeDemandPrompt(&b, data, in.Stats, now)
	case TaskScheduleOptimizations:
		writeSchedulePrompt(&b, data, in.Stats)
	default:
		writeChatPrompt(&b, data, in.Stats, in.Question)
	}
	return b.String()
}

func writeDemandPrompt(b *strings.Builder, data *models.AnalyticsData, s Stats, now time.Time) {
	tomorrow := now.AddDate(0, 0, 1).Format(isoDate)
	dayAfter := now.AddDate(0, 0, 2).Format(isoDate)

	b.WriteString("You are a transit demand analyst for a university shuttle service.\n")
	b.WriteString("Predict passenger demand per route and time slot from the usage data below.\n\n")

	writeOverview(b, Counters(data))
	writeRoutes(b, data.Routes, s)
	writeHourly(b, s)
	writeLocations(b, s)

	fmt.Fprintf(b, "\nTARGET DATES: %s (tomorrow) and %s (day after tomorrow)\n\n", tomorrow, dayAfter)
	b.WriteString("Respond ONLY with a JSON array, no prose, in exactly this shape:\n")
	fmt.Fprintf(b, `[
  {
    "routeId": "R001",
    "routeName": "Main Campus Loop",
    "predictedDemand": 42,
    "confidence": 80,
    "timeSlot": "07:30-08:30",
    "date": "%s",
    "reasoning": "Why this demand is expected, citing the numbers above",
    "recommendedAction": "What operations should do"
  }
]
`, tomorrow)
	b.WriteString("Rules: one or more predictions per route; predictedDemand is a non-negative integer; ")
	b.WriteString("confidence is an integer from 0 to 100; timeSlot is formatted HH:MM-HH:MM; date is formatted YYYY-MM-DD.\n")
}

func writeSchedulePrompt(b *strings.Builder, data *models.AnalyticsData, s Stats) {
	b.WriteString("You are a scheduling analyst for a university shuttle service.\n")
	b.WriteString("Propose an optimized departure schedule for each route using the usage data below.\n\n")

	writeOverview(b, Counters(data))
	writeRoutes(b, data.Routes, s)
	writeHourly(b, s)

	b.WriteString("\nRespond ONLY with a JSON array, no prose, in exactly this shape:\n")
	b.WriteString(`[
  {
    "routeId": "R001",
    "routeName": "Main Campus Loop",
    "currentSchedule": ["07:30", "08:00"],
    "optimizedSchedule": ["07:15", "07:30", "08:00", "08:45"],
    "efficiencyGain": 18,
    "reasoning": "Why the change helps, citing the numbers above",
    "implementationSteps": ["Step one", "Step two"]
  }
]
`)
	b.WriteString("Rules: one entry per route; currentSchedule repeats the route's schedule; optimizedSchedule is non-empty, ")
	b.WriteString("in ascending HH:MM order and keeps at least as many departures as currentSchedule; ")
	b.WriteString("efficiencyGain is a non-negative integer percentage.\n")
}

func writeChatPrompt(b *strings.Builder, data *models.AnalyticsData, s Stats, question string) {
	c := Counters(data)

	b.WriteString("You are the operations assistant of a university shuttle service.\n")
	b.WriteString("Answer the administrator's question using ONLY the data below.\n\n")
	writeOverview(b, c)

	drivers := activeDriversByRoute(data)
	b.WriteString("\nACTIVE ROUTES AND ASSIGNED DRIVERS\n")
	var unstaffed []string
	active := 0
	for _, r := range data.Routes {
		if !r.IsActive() {
			continue
		}
		active++
		n := drivers[r.ID]
		fmt.Fprintf(b, "- %s (%s): %d active driver(s), %d boardings\n", r.DisplayName(), r.ID, n, s.RouteDemand[r.ID])
		if n == 0 {
			unstaffed = append(unstaffed, r.DisplayName())
		}
	}
	if active == 0 {
		b.WriteString("- no active routes\n")
	}
	if len(unstaffed) > 0 {
		fmt.Fprintf(b, "Routes with zero assigned drivers: %s\n", strings.Join(unstaffed, ", "))
	}

	if peaks := stats.TopN(s.TimeSlotDemand, 3); len(peaks) > 0 {
		b.WriteString("\nBUSIEST HOURS\n")
		for _, p := range peaks {
			fmt.Fprintf(b, "- %s: %d boardings\n", p.Key, p.Count)
		}
	}

	if (c.ActiveRoutes > 0 || active > 0) && c.ActiveDrivers == 0 {
		b.WriteString("\nANOMALY: routes are active but there are zero active drivers. ")
		b.WriteString("Point this out if the question concerns drivers, staffing or service availability.\n")
	}

	for _, name := range UnresolvedRouteReferences(question, data.Routes) {
		fmt.Fprintf(b, "\nNOTE: the route %q in the question does not exist in the data. ", name)
		b.WriteString("State that driver and assignment information for it is unavailable.\n")
	}

	b.WriteString("\nINSTRUCTIONS\n")
	fmt.Fprintf(b, "- Reply in plain text, at most %d words, no markdown, no lists, no headings.\n", ChatWordLimit)
	b.WriteString("- If the answer cannot be determined from the data, say the information is unavailable instead of guessing.\n")
	b.WriteString("- Quote exact numbers from the data when relevant.\n")

	q := strings.TrimSpace(question)
	if q == "" {
		q = "(no question provided)"
	}
	fmt.Fprintf(b, "\nQUESTION: %s\n", q)
}

func writeOverview(b *strings.Builder, c models.SystemCounters) {
	b.WriteString("SYSTEM OVERVIEW\n")
	fmt.Fprintf(b, "- Routes: %d total, %d active\n", c.TotalRoutes, c.ActiveRoutes)
	fmt.Fprintf(b, "- Shuttles: %d total, %d active\n", c.TotalShuttles, c.ActiveShuttles)
	fmt.Fprintf(b, "- Drivers: %d total, %d active\n", c.TotalDrivers, c.ActiveDrivers)
	fmt.Fprintf(b, "- Students: %d\n", c.TotalStudents)
	fmt.Fprintf(b, "- Boardings recorded: %d\n", c.TotalBoardings)
	fmt.Fprintf(b, "- Active travel cards: %d\n", c.ActiveCards)
}

func writeRoutes(b *strings.Builder, routes []models.RouteDescriptor, s Stats) {
	b.WriteString("\nROUTES\n")
	if len(routes) == 0 {
		b.WriteString("- no routes configured\n")
		return
	}
	for _, r := range routes {
		schedule := "no scheduled departures"
		if len(r.Schedule) > 0 {
			schedule = strings.Join(r.Schedule, ", ")
		}
		days := "not specified"
		if len(r.OperatingDays) > 0 {
			days = strings.Join(r.OperatingDays, ", ")
		}
		perf := s.RoutePerformance[r.ID]
		fmt.Fprintf(b, "- %s %q: schedule [%s]; operating days: %s; boardings: %d; avg per day: %d; boardings per departure: %.2f\n",
			r.ID, r.DisplayName(), schedule, days, perf.TotalBoardings, perf.AvgPerDay, perf.Utilization)
	}
	if n := s.RouteDemand[UnknownRoute]; n > 0 {
		fmt.Fprintf(b, "- %d boardings could not be matched to a route\n", n)
	}
}

func writeHourly(b *strings.Builder, s Stats) {
	b.WriteString("\nBOARDINGS BY HOUR\n")
	if len(s.TimeSlotDemand) == 0 {
		b.WriteString("- no boarding data\n")
		return
	}
	slots := make([]string, 0, len(s.TimeSlotDemand))
	for slot := range s.TimeSlotDemand {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		fmt.Fprintf(b, "- %s: %d\n", slot, s.TimeSlotDemand[slot])
	}
}

func writeLocations(b *strings.Builder, s Stats) {
	top := stats.TopN(s.LocationDemand, 5)
	if len(top) == 0 {
		return
	}
	b.WriteString("\nBUSIEST BOARDING LOCATIONS\n")
	for _, kc := range top {
		fmt.Fprintf(b, "- %s: %d\n", kc.Key, kc.Count)
	}
}

func activeDriversByRoute(data *models.AnalyticsData) map[string]int {
	activeDriver := make(map[string]bool)
	for _, u := range data.Users {
		if u.Role == models.RoleDriver && (u.Status == "" || u.Status == models.StatusActive) {
			activeDriver[u.ID] = true
		}
	}

	counted := make(map[string]map[string]bool)
	for _, a := range data.RouteAssignments {
		if a.Status != "" && a.Status != models.StatusActive {
			continue
		}
		if !activeDriver[a.DriverID] {
			continue
		}
		if counted[a.RouteID] == nil {
			counted[a.RouteID] = make(map[string]bool)
		}
		counted[a.RouteID][a.DriverID] = true
	}

	out := make(map[string]int, len(counted))
	for routeID, ds := range counted {
		out[routeID] = len(ds)
	}
	return out
}

var routeReference = regexp.MustCompile(`(?i)\broute(?:\s+(?:named|called))?\s+["']?([\p{L}\p{N}][\p{L}\p{N}_-]*)`)

// routeWords are tokens after "route" that do not name a route
var routeWords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true, "each": true, "every": true, "any": true,
	"with": true, "has": true, "have": true, "is": true, "are": true, "for": true, "of": true, "in": true,
	"on": true, "and": true, "or": true,
}

// UnresolvedRouteReferences returns the "route <name>" references in a question that match
// no route id or name, in order of appearance.
func UnresolvedRouteReferences(question string, routes []models.RouteDescriptor) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range routeReference.FindAllStringSubmatch(question, -1) {
		ref := m[1]
		key := strings.ToLower(ref)
		if routeWords[key] || seen[key] {
			continue
		}
		seen[key] = true
		if !routeKnown(key, routes) {
			out = append(out, ref)
		}
	}
	return out
}

func routeKnown(ref string, routes []models.RouteDescriptor) bool {
	for _, r := range routes {
		if strings.EqualFold(r.ID, ref) {
			return true
		}
		for _, word := range strings.Fields(strings.ToLower(r.Name)) {
			if word == ref {
				return true
			}
		}
	}
	return false
}
