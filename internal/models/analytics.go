package models

// Shuttle represents a vehicle in the fleet
type Shuttle struct {
	ID          string `json:"id" db:"id"`
	PlateNumber string `json:"plateNumber,omitempty" db:"plate_number"`
	Capacity    int    `json:"capacity" db:"capacity"`
	Status      string `json:"status" db:"status"` // active, maintenance, inactive
	RouteID     string `json:"routeId,omitempty" db:"route_id"`
	DriverID    string `json:"driverId,omitempty" db:"driver_id"`
}

// User represents a student, driver or administrator account
type User struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Email  string `json:"email,omitempty" db:"email"`
	Role   string `json:"role" db:"role"`     // student, driver, admin
	Status string `json:"status" db:"status"` // active, inactive
}

// RouteAssignment binds a driver (and optionally a shuttle) to a route
type RouteAssignment struct {
	ID        string `json:"id" db:"id"`
	RouteID   string `json:"routeId" db:"route_id"`
	DriverID  string `json:"driverId" db:"driver_id"`
	ShuttleID string `json:"shuttleId,omitempty" db:"shuttle_id"`
	Status    string `json:"status" db:"status"` // active, ended
}

// TravelCard represents a student's digital travel card
type TravelCard struct {
	ID      string  `json:"id" db:"id"`
	UserID  string  `json:"userId" db:"user_id"`
	Balance float64 `json:"balance" db:"balance"`
	Status  string  `json:"status" db:"status"` // active, blocked
}

// Location represents a named stop or campus point
type Location struct {
	ID        string  `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Type      string  `json:"type,omitempty" db:"type"` // stop, campus, residence
}

// SystemCounters holds precomputed system-wide counts
type SystemCounters struct {
	TotalRoutes    int `json:"totalRoutes"`
	ActiveRoutes   int `json:"activeRoutes"`
	TotalShuttles  int `json:"totalShuttles"`
	ActiveShuttles int `json:"activeShuttles"`
	TotalDrivers   int `json:"totalDrivers"`
	ActiveDrivers  int `json:"activeDrivers"`
	TotalStudents  int `json:"totalStudents"`
	TotalBoardings int `json:"totalBoardings"`
	ActiveCards    int `json:"activeCards"`
}

// IsZero reports whether no counter has been set
func (c SystemCounters) IsZero() bool {
	return c == SystemCounters{}
}

// AnalyticsData is the snapshot of system records consumed by the insights pipeline
type AnalyticsData struct {
	Routes             []RouteDescriptor `json:"routes"`
	Shuttles           []Shuttle         `json:"shuttles"`
	Users              []User            `json:"users"`
	RouteAssignments   []RouteAssignment `json:"routeAssignments"`
	BoardingRecords    []UsageRecord     `json:"boardingRecords"`
	DigitalTravelCards []TravelCard      `json:"digitalTravelCards"`
	Locations          []Location        `json:"locations"`
	Counters           SystemCounters    `json:"counters"`
}

const (
	RoleStudent = "student"
	RoleDriver  = "driver"
	RoleAdmin   = "admin"

	StatusActive = "active"
)
