package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jengzang/shuttle-backend-go/internal/database"
	"github.com/jengzang/shuttle-backend-go/internal/models"
)

// AnalyticsRepository reads and imports the records the insights pipeline consumes
type AnalyticsRepository struct {
	db     *sql.DB
	driver string
}

// NewAnalyticsRepository creates a new analytics repository
func NewAnalyticsRepository(db *sql.DB, driver string) *AnalyticsRepository {
	return &AnalyticsRepository{db: db, driver: driver}
}

// LoadSnapshot reads every collection into one snapshot. Counters are left zero so they are derived from the records.
func (r *AnalyticsRepository) LoadSnapshot(ctx context.Context) (*models.AnalyticsData, error) {
	data := &models.AnalyticsData{}
	var err error

	if data.Routes, err = r.loadRoutes(ctx); err != nil {
		return nil, err
	}
	if data.Shuttles, err = r.loadShuttles(ctx); err != nil {
		return nil, err
	}
	if data.Users, err = r.loadUsers(ctx); err != nil {
		return nil, err
	}
	if data.RouteAssignments, err = r.loadAssignments(ctx); err != nil {
		return nil, err
	}
	if data.BoardingRecords, err = r.loadBoardings(ctx); err != nil {
		return nil, err
	}
	if data.DigitalTravelCards, err = r.loadCards(ctx); err != nil {
		return nil, err
	}
	if data.Locations, err = r.loadLocations(ctx); err != nil {
		return nil, err
	}

	return data, nil
}

func (r *AnalyticsRepository) loadRoutes(ctx context.Context) ([]models.RouteDescriptor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, start_point, end_point, schedule_json, operating_days_json, status
		FROM routes
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []models.RouteDescriptor
	for rows.Next() {
		var route models.RouteDescriptor
		var scheduleJSON, daysJSON string
		if err := rows.Scan(&route.ID, &route.Name, &route.StartPoint, &route.EndPoint, &scheduleJSON, &daysJSON, &route.Status); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		if route.Schedule, err = decodeStrings(scheduleJSON); err != nil {
			return nil, fmt.Errorf("invalid schedule for route %s: %w", route.ID, err)
		}
		if route.OperatingDays, err = decodeStrings(daysJSON); err != nil {
			return nil, fmt.Errorf("invalid operating days for route %s: %w", route.ID, err)
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

func (r *AnalyticsRepository) loadShuttles(ctx context.Context) ([]models.Shuttle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plate_number, capacity, status, route_id, driver_id
		FROM shuttles
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query shuttles: %w", err)
	}
	defer rows.Close()

	var shuttles []models.Shuttle
	for rows.Next() {
		var s models.Shuttle
		if err := rows.Scan(&s.ID, &s.PlateNumber, &s.Capacity, &s.Status, &s.RouteID, &s.DriverID); err != nil {
			return nil, fmt.Errorf("failed to scan shuttle: %w", err)
		}
		shuttles = append(shuttles, s)
	}
	return shuttles, rows.Err()
}

func (r *AnalyticsRepository) loadUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, email, role, status FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Status); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *AnalyticsRepository) loadAssignments(ctx context.Context) ([]models.RouteAssignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, route_id, driver_id, shuttle_id, status
		FROM route_assignments
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query route assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.RouteAssignment
	for rows.Next() {
		var a models.RouteAssignment
		if err := rows.Scan(&a.ID, &a.RouteID, &a.DriverID, &a.ShuttleID, &a.Status); err != nil {
			return nil, fmt.Errorf("failed to scan route assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (r *AnalyticsRepository) loadBoardings(ctx context.Context) ([]models.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, route_id, boarded_at, passenger_id, shuttle_id, location_id, latitude, longitude
		FROM boarding_records
		ORDER BY boarded_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query boarding records: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var rec models.UsageRecord
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.RouteID, &rec.Timestamp, &rec.PassengerID, &rec.ShuttleID, &rec.LocationID, &lat, &lon); err != nil {
			return nil, fmt.Errorf("failed to scan boarding record: %w", err)
		}
		if lat.Valid && lon.Valid {
			rec.Latitude = &lat.Float64
			rec.Longitude = &lon.Float64
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *AnalyticsRepository) loadCards(ctx context.Context) ([]models.TravelCard, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, balance, status FROM travel_cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query travel cards: %w", err)
	}
	defer rows.Close()

	var cards []models.TravelCard
	for rows.Next() {
		var c models.TravelCard
		if err := rows.Scan(&c.ID, &c.UserID, &c.Balance, &c.Status); err != nil {
			return nil, fmt.Errorf("failed to scan travel card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *AnalyticsRepository) loadLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, latitude, longitude, type FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude, &l.Type); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// ImportSummary counts the rows written per collection
type ImportSummary struct {
	Routes      int `json:"routes"`
	Shuttles    int `json:"shuttles"`
	Users       int `json:"users"`
	Assignments int `json:"routeAssignments"`
	Boardings   int `json:"boardingRecords"`
	Cards       int `json:"digitalTravelCards"`
	Locations   int `json:"locations"`
}

// ImportSnapshot upserts every collection of a snapshot in one transaction
func (r *AnalyticsRepository) ImportSnapshot(ctx context.Context, data *models.AnalyticsData) (ImportSummary, error) {
	var sum ImportSummary
	if data == nil {
		return sum, nil
	}

	err := database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		u := upserter{ctx: ctx, tx: tx, driver: r.driver}

		for _, route := range data.Routes {
			schedule, _ := json.Marshal(orEmpty(route.Schedule))
			days, _ := json.Marshal(orEmpty(route.OperatingDays))
			status := route.Status
			if status == "" {
				status = models.RouteStatusActive
			}
			u.exec("routes", []string{"id", "name", "start_point", "end_point", "schedule_json", "operating_days_json", "status"},
				route.ID, route.Name, route.StartPoint, route.EndPoint, string(schedule), string(days), status)
		}
		sum.Routes = len(data.Routes)

		for _, s := range data.Shuttles {
			u.exec("shuttles", []string{"id", "plate_number", "capacity", "status", "route_id", "driver_id"},
				s.ID, s.PlateNumber, s.Capacity, s.Status, s.RouteID, s.DriverID)
		}
		sum.Shuttles = len(data.Shuttles)

		for _, user := range data.Users {
			u.exec("users", []string{"id", "name", "email", "role", "status"},
				user.ID, user.Name, user.Email, user.Role, user.Status)
		}
		sum.Users = len(data.Users)

		for _, a := range data.RouteAssignments {
			u.exec("route_assignments", []string{"id", "route_id", "driver_id", "shuttle_id", "status"},
				a.ID, a.RouteID, a.DriverID, a.ShuttleID, a.Status)
		}
		sum.Assignments = len(data.RouteAssignments)

		for _, rec := range data.BoardingRecords {
			u.exec("boarding_records", []string{"id", "route_id", "boarded_at", "passenger_id", "shuttle_id", "location_id", "latitude", "longitude"},
				rec.ID, rec.RouteID, rec.Timestamp, rec.PassengerID, rec.ShuttleID, rec.LocationID, nullFloat(rec.Latitude), nullFloat(rec.Longitude))
		}
		sum.Boardings = len(data.BoardingRecords)

		for _, c := range data.DigitalTravelCards {
			u.exec("travel_cards", []string{"id", "user_id", "balance", "status"}, c.ID, c.UserID, c.Balance, c.Status)
		}
		sum.Cards = len(data.DigitalTravelCards)

		for _, l := range data.Locations {
			u.exec("locations", []string{"id", "name", "latitude", "longitude", "type"}, l.ID, l.Name, l.Latitude, l.Longitude, l.Type)
		}
		sum.Locations = len(data.Locations)

		return u.err
	})
	if err != nil {
		return ImportSummary{}, err
	}
	return sum, nil
}

// upserter writes rows keyed by id and keeps the first error
type upserter struct {
	ctx    context.Context
	tx     *sql.Tx
	driver string
	err    error
}

func (u *upserter) exec(table string, cols []string, args ...interface{}) {
	if u.err != nil {
		return
	}
	if id, _ := args[0].(string); id == "" {
		u.err = fmt.Errorf("%s row without id", table)
		return
	}
	if _, err := u.tx.ExecContext(u.ctx, database.Rebind(u.driver, upsertQuery(table, cols)), args...); err != nil {
		u.err = fmt.Errorf("failed to upsert %s %v: %w", table, args[0], err)
	}
}

// upsertQuery builds an INSERT ... ON CONFLICT(id) DO UPDATE statement; cols[0] must be id
func upsertQuery(table string, cols []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, c+" = excluded."+c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), placeholders, strings.Join(updates, ", "))
}

func decodeStrings(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
