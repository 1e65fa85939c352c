package insights

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jengzang/shuttle-backend-go/internal/models"
)

func promptData() *models.AnalyticsData {
	return &models.AnalyticsData{
		Routes: sampleRoutes(),
		Users: []models.User{
			{ID: "D1", Role: models.RoleDriver, Status: "active"},
			{ID: "D2", Role: models.RoleDriver, Status: "inactive"},
			{ID: "S1", Role: models.RoleStudent},
		},
		RouteAssignments: []models.RouteAssignment{
			{ID: "A1", RouteID: "R001", DriverID: "D1", Status: "active"},
			{ID: "A2", RouteID: "R001", DriverID: "D1", Status: "active"},
			{ID: "A3", RouteID: "R002", DriverID: "D2", Status: "active"},
		},
		BoardingRecords: weekOfBoardings("R001", 14),
	}
}

func TestBuildPrompt_Demand(t *testing.T) {
	data := promptData()
	p := BuildPrompt(PromptInput{Kind: TaskDemandPredictions, Data: data, Stats: Aggregate(data.BoardingRecords, data.Routes), Now: testNow})

	assert.Contains(t, p, "SYSTEM OVERVIEW")
	assert.Contains(t, p, "2026-10-15 (tomorrow)")
	assert.Contains(t, p, "2026-10-16 (day after tomorrow)")
	assert.Contains(t, p, `"predictedDemand"`)
	assert.Contains(t, p, `R001 "Main Campus Loop": schedule [07:30, 08:00]`)
	assert.Contains(t, p, `R004 "Medical School Link": schedule [no scheduled departures]`)
	assert.Contains(t, p, "BOARDINGS BY HOUR")
}

func TestBuildPrompt_Schedule(t *testing.T) {
	data := promptData()
	p := BuildPrompt(PromptInput{Kind: TaskScheduleOptimizations, Data: data, Stats: Aggregate(data.BoardingRecords, data.Routes)})

	assert.Contains(t, p, `"optimizedSchedule"`)
	assert.Contains(t, p, "keeps at least as many departures as currentSchedule")
	assert.NotContains(t, p, "TARGET DATES")
}

func TestBuildPrompt_MissingData(t *testing.T) {
	for _, kind := range []TaskKind{TaskDemandPredictions, TaskScheduleOptimizations, TaskChat} {
		p := BuildPrompt(PromptInput{Kind: kind, Now: testNow})
		assert.NotEmpty(t, p, kind)
		assert.Contains(t, p, "- Routes: 0 total, 0 active", kind)
	}
}

func TestBuildPrompt_ChatDrivers(t *testing.T) {
	data := promptData()
	p := BuildPrompt(PromptInput{Kind: TaskChat, Data: data, Stats: Aggregate(data.BoardingRecords, data.Routes), Question: "Who drives route R001?"})

	assert.Contains(t, p, "- Main Campus Loop (R001): 1 active driver(s), 14 boardings")
	assert.Contains(t, p, "- Hostel Express (R002): 0 active driver(s)")
	assert.Contains(t, p, "Routes with zero assigned drivers: Hostel Express, Engineering Shuttle, Medical School Link")
	assert.NotContains(t, p, "Library Night Run (R005)")
	assert.NotContains(t, p, "ANOMALY")
	assert.NotContains(t, p, "does not exist in the data")
	assert.True(t, strings.HasSuffix(p, "QUESTION: Who drives route R001?\n"))
}

func TestBuildPrompt_ChatAnomaly(t *testing.T) {
	data := &models.AnalyticsData{Routes: sampleRoutes()}
	p := BuildPrompt(PromptInput{Kind: TaskChat, Data: data, Question: "Why are buses late?"})

	assert.Contains(t, p, "ANOMALY: routes are active but there are zero active drivers")
}

func TestBuildPrompt_ChatUnknownRoute(t *testing.T) {
	data := promptData()
	p := BuildPrompt(PromptInput{Kind: TaskChat, Data: data, Question: "Which driver is assigned to route Zeta?"})

	assert.Contains(t, p, `NOTE: the route "Zeta" in the question does not exist in the data.`)
	assert.Contains(t, p, "driver and assignment information for it is unavailable")
}

func TestUnresolvedRouteReferences(t *testing.T) {
	routes := sampleRoutes()
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{"known id", "How busy is route R002?", nil},
		{"id case-insensitive", "How busy is route r002?", nil},
		{"name word", "Is route Hostel running?", nil},
		{"unknown", "Who drives route Zeta today?", []string{"Zeta"}},
		{"named", "Is there a route named 'Omega' or route Zeta?", []string{"Omega", "Zeta"}},
		{"quoted", `What about route "Delta"?`, []string{"Delta"}},
		{"stop words", "Which route has the most riders on the route with most stops?", nil},
		{"deduplicated", "route Zeta and route zeta", []string{"Zeta"}},
		{"no reference", "How many drivers are active?", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UnresolvedRouteReferences(tt.question, routes))
		})
	}
}
