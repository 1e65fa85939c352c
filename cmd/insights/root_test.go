package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jengzang/shuttle-backend-go/internal/middleware"
	"github.com/jengzang/shuttle-backend-go/internal/models"
)

const campusYAML = `
routes:
  - id: R001
    name: Main Campus Loop
    schedule: ["07:30", "12:00"]
  - id: R002
    name: Hostel Express
    schedule: []
boardingRecords:
  - id: b1
    routeId: R001
    timestamp: "2026-10-13T07:40:00Z"
  - id: b2
    routeId: R001
    timestamp: "2026-10-13T07:50:00Z"
  - id: b3
    routeId: R002
    timestamp: 1791882000000
`

func setupEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("JWT_SECRET", "cli-test-secret")

	path := filepath.Join(dir, "campus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(campusYAML), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	err := (&cli{}).execute(context.Background(), args, &out, &bytes.Buffer{})
	return out.String(), err
}

func TestPredict_FromSnapshotFile(t *testing.T) {
	path := setupEnv(t)

	out, err := execute(t, "predict", "--snapshot", path, "--offline", "--seed", "7")
	require.NoError(t, err)

	var res struct {
		Data           []models.DemandPrediction `json:"data"`
		Source         string                    `json:"source"`
		FallbackReason string                    `json:"fallbackReason"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "fallback", res.Source)
	assert.Equal(t, "ai_disabled", res.FallbackReason)
	// both routes are within the first three, so each gets two predictions
	assert.Len(t, res.Data, 4)

	again, err := execute(t, "predict", "--snapshot", path, "--offline", "--seed", "7")
	require.NoError(t, err)
	var res2 struct {
		Data []models.DemandPrediction `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(again), &res2))
	assert.Equal(t, res.Data, res2.Data)
}

func TestOptimize_FromSnapshotFile(t *testing.T) {
	path := setupEnv(t)

	out, err := execute(t, "optimize", "-s", path, "--offline")
	require.NoError(t, err)

	var res struct {
		Data []models.ScheduleOptimization `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Data, 2)
	assert.Equal(t, []string{"07:15", "07:30", "08:45", "12:00"}, res.Data[0].OptimizedSchedule)
	assert.Equal(t, 25, res.Data[1].EfficiencyGain)
}

func TestChat_RequiresQuestion(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "chat")
	assert.Error(t, err)
}

func TestChat_Offline(t *testing.T) {
	path := setupEnv(t)

	out, err := execute(t, "chat", "-s", path, "--offline", "how", "busy", "is", "R001?")
	require.NoError(t, err)
	assert.Contains(t, out, "temporarily unavailable")
}

func TestImportThenStats(t *testing.T) {
	path := setupEnv(t)

	out, err := execute(t, "import", path)
	require.NoError(t, err)
	var sum map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 2, sum["routes"])
	assert.Equal(t, 3, sum["boardingRecords"])

	out, err = execute(t, "stats")
	require.NoError(t, err)
	var report struct {
		RouteDemand map[string]int `json:"routeDemand"`
		Counters    struct {
			TotalRoutes int `json:"totalRoutes"`
		} `json:"counters"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.RouteDemand["R001"])
	assert.Equal(t, 1, report.RouteDemand["R002"])
	assert.Equal(t, 2, report.Counters.TotalRoutes)
}

func TestToken(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "token", "--subject", "ops")
	require.NoError(t, err)

	claims, err := middleware.ParseToken("cli-test-secret", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	_, err = execute(t, "token", "--ttl", "0s")
	assert.Error(t, err)
}

func TestExecute_ClosesDatabaseOnError(t *testing.T) {
	dir := t.TempDir()
	setupEnv(t)
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"routes": [{"name": "missing id"}]}`), 0o644))

	c := &cli{}
	err := c.execute(context.Background(), []string{"import", bad}, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)

	require.NotNil(t, c.db)
	assert.ErrorContains(t, c.db.Ping(), "closed")
}

func TestExecute_LogLevelFromConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("LOG_LEVEL", "error")

	c := &cli{}
	require.NoError(t, c.execute(context.Background(), []string{"token"}, &bytes.Buffer{}, &bytes.Buffer{}))
	require.NotNil(t, c.logger)
	assert.False(t, c.logger.Core().Enabled(zap.WarnLevel))
	assert.True(t, c.logger.Core().Enabled(zap.ErrorLevel))

	verbose := &cli{}
	require.NoError(t, verbose.execute(context.Background(), []string{"token", "--verbose"}, &bytes.Buffer{}, &bytes.Buffer{}))
	assert.True(t, verbose.logger.Core().Enabled(zap.DebugLevel))
}
