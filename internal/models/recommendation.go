package models

import (
	"encoding/json"
	"time"
)

// DemandPrediction represents a forecast of passenger volume for a route, time slot and date
type DemandPrediction struct {
	RouteID           string `json:"routeId"`
	RouteName         string `json:"routeName"`
	PredictedDemand   int    `json:"predictedDemand"` // >= 0
	Confidence        int    `json:"confidence"`      // 0-100
	TimeSlot          string `json:"timeSlot"`        // HH:MM-HH:MM
	Date              string `json:"date"`            // YYYY-MM-DD
	Reasoning         string `json:"reasoning"`
	RecommendedAction string `json:"recommendedAction"`
}

// ScheduleOptimization represents a proposed revision of a route's departure times
type ScheduleOptimization struct {
	RouteID             string   `json:"routeId"`
	RouteName           string   `json:"routeName,omitempty"`
	CurrentSchedule     []string `json:"currentSchedule"`
	OptimizedSchedule   []string `json:"optimizedSchedule"`
	EfficiencyGain      int      `json:"efficiencyGain"` // percent, >= 0
	Reasoning           string   `json:"reasoning"`
	ImplementationSteps []string `json:"implementationSteps"`
}

// RecommendationRun is a persisted record of one pipeline invocation
type RecommendationRun struct {
	ID             string          `json:"id" db:"id"`
	Kind           string          `json:"kind" db:"kind"`     // demand-predictions, schedule-optimizations
	Source         string          `json:"source" db:"source"` // ai, fallback
	FallbackReason string          `json:"fallbackReason,omitempty" db:"fallback_reason"`
	ItemCount      int             `json:"itemCount" db:"item_count"`
	Payload        json.RawMessage `json:"payload" db:"payload_json"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}
