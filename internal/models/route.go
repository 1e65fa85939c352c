package models

// RouteDescriptor represents the static definition of a shuttle route
type RouteDescriptor struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	StartPoint string `json:"startPoint,omitempty" db:"start_point"`
	EndPoint   string `json:"endPoint,omitempty" db:"end_point"`

	// Departure times as wall-clock strings ("07:30"), ascending
	Schedule      []string `json:"schedule" db:"schedule_json"`
	OperatingDays []string `json:"operatingDays,omitempty" db:"operating_days_json"` // Monday..Sunday

	Status string `json:"status,omitempty" db:"status"` // active, inactive
}

// IsActive reports whether the route is in service. Routes without a status are treated as active.
func (r RouteDescriptor) IsActive() bool {
	return r.Status == "" || r.Status == RouteStatusActive
}

// DisplayName returns the route name, falling back to the route ID
func (r RouteDescriptor) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	if r.ID != "" {
		return r.ID
	}
	return "Unnamed route"
}

const (
	RouteStatusActive   = "active"
	RouteStatusInactive = "inactive"
)
