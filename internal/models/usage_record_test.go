package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageRecord_UnmarshalTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"id": "1", "routeId": "R001", "timestamp": "2026-10-13T07:40:00Z"}`, "2026-10-13T07:40:00Z"},
		{`{"id": "1", "routeId": "R001", "timestamp": 1760341200}`, "1760341200"},
		{`{"id": "1", "routeId": "R001", "timestamp": null}`, ""},
		{`{"id": "1", "routeId": "R001"}`, ""},
	}
	for _, tt := range tests {
		var rec UsageRecord
		require.NoError(t, json.Unmarshal([]byte(tt.in), &rec), tt.in)
		assert.Equal(t, tt.want, rec.Timestamp)
		assert.Equal(t, "R001", rec.RouteID)
	}

	var rec UsageRecord
	assert.Error(t, json.Unmarshal([]byte(`{"timestamp": true}`), &rec))
}

func TestUsageRecord_Coordinates(t *testing.T) {
	var rec UsageRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id": "1", "latitude": 6.5, "longitude": 3.4}`), &rec))
	assert.True(t, rec.HasCoordinates())
}

func TestRouteDescriptor(t *testing.T) {
	assert.True(t, RouteDescriptor{}.IsActive())
	assert.False(t, RouteDescriptor{Status: RouteStatusInactive}.IsActive())
	assert.Equal(t, "R9", RouteDescriptor{ID: "R9"}.DisplayName())
	assert.Equal(t, "Unnamed route", RouteDescriptor{}.DisplayName())
}
