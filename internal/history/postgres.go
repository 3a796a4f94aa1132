package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-lifecycle/internal/models"
)

// PostgresStore persists ride records in a single rides table. The
// completion write is INSERT .. ON CONFLICT DO UPDATE so that racing
// observers converge on one record; completed_at keeps its first value.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresStore(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CompleteRide(ctx context.Context, rec models.RideRecord) error {
	completedAt := time.Now()
	if rec.CompletedAt != nil {
		completedAt = *rec.CompletedAt
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides (
			id, rider_id, origin_lat, origin_lng,
			dest_lat, dest_lng, dest_address,
			service, price, driver_id, driver_name, driver_phone,
			status, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			rider_id = EXCLUDED.rider_id,
			origin_lat = EXCLUDED.origin_lat,
			origin_lng = EXCLUDED.origin_lng,
			dest_lat = EXCLUDED.dest_lat,
			dest_lng = EXCLUDED.dest_lng,
			dest_address = EXCLUDED.dest_address,
			service = EXCLUDED.service,
			price = EXCLUDED.price,
			driver_id = EXCLUDED.driver_id,
			driver_name = EXCLUDED.driver_name,
			driver_phone = EXCLUDED.driver_phone,
			status = EXCLUDED.status,
			completed_at = COALESCE(rides.completed_at, EXCLUDED.completed_at)`,
		rec.ID, rec.RiderID, rec.Origin.Lat, rec.Origin.Lng,
		rec.Destination.Lat, rec.Destination.Lng, nullString(rec.Destination.Address),
		rec.Service, rec.Price, nullString(rec.DriverID), nullString(rec.DriverName), nullString(rec.DriverPhone),
		string(rec.Status), completedAt,
	)
	if err != nil {
		return fmt.Errorf("complete ride %s: %w", rec.ID, err)
	}
	return nil
}

func (p *PostgresStore) SaveRoute(ctx context.Context, rideID string, route models.CachedRoute) error {
	geom, err := json.Marshal(route.Geometry)
	if err != nil {
		return err
	}
	var distance, duration sql.NullFloat64
	if route.Summary != nil {
		distance = sql.NullFloat64{Float64: route.Summary.DistanceMeters, Valid: true}
		duration = sql.NullFloat64{Float64: route.Summary.DurationSeconds, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE rides SET route_geometry=$2, route_distance_m=$3, route_duration_s=$4, route_provider=$5
		WHERE id=$1`,
		rideID, geom, distance, duration, nullString(route.Provider))
	if err != nil {
		return fmt.Errorf("save route %s: %w", rideID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const recordColumns = `
	id, rider_id, origin_lat, origin_lng,
	dest_lat, dest_lng, dest_address,
	service, price, driver_id, driver_name, driver_phone,
	status, completed_at,
	route_geometry, route_distance_m, route_duration_s, route_provider,
	rider_rating, rider_comment, rider_rated_at`

func (p *PostgresStore) Get(ctx context.Context, rideID string) (models.RideRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM rides WHERE id=$1`, rideID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return models.RideRecord{}, ErrNotFound
	}
	return rec, err
}

func (p *PostgresStore) ByRider(ctx context.Context, riderID string) ([]models.RideRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM rides WHERE rider_id=$1 ORDER BY completed_at DESC NULLS LAST`, riderID)
	if err != nil {
		// the ordered query needs its supporting index; fall back to the
		// plain equality fetch and sort here
		if p.logger != nil {
			p.logger.Warn("ordered history query failed, using fallback", "error", err)
		}
		rows, err = p.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM rides WHERE rider_id=$1`, riderID)
		if err != nil {
			return nil, fmt.Errorf("history query: %w", err)
		}
		recs, err := collectRecords(rows)
		if err != nil {
			return nil, err
		}
		SortByCompletedDesc(recs)
		return recs, nil
	}
	return collectRecords(rows)
}

func (p *PostgresStore) Rate(ctx context.Context, rideID, riderID string, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	var owner string
	err := p.db.QueryRowContext(ctx, `SELECT rider_id FROM rides WHERE id=$1`, rideID).Scan(&owner)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("rate ride %s: %w", rideID, err)
	}
	if owner != riderID {
		return ErrUnauthorized
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE rides SET rider_rating=$2, rider_comment=$3, rider_rated_at=$4
		WHERE id=$1 AND rider_id=$5`,
		rideID, rating, nullString(comment), time.Now(), riderID)
	if err != nil {
		return fmt.Errorf("rate ride %s: %w", rideID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.RideRecord, error) {
	var (
		rec                            models.RideRecord
		destAddress                    sql.NullString
		driverID, driverName, driverPh sql.NullString
		status                         string
		completedAt, ratedAt           sql.NullTime
		routeGeom                      []byte
		routeDist, routeDur            sql.NullFloat64
		routeProvider, comment         sql.NullString
		rating                         sql.NullInt64
	)
	err := row.Scan(
		&rec.ID, &rec.RiderID, &rec.Origin.Lat, &rec.Origin.Lng,
		&rec.Destination.Lat, &rec.Destination.Lng, &destAddress,
		&rec.Service, &rec.Price, &driverID, &driverName, &driverPh,
		&status, &completedAt,
		&routeGeom, &routeDist, &routeDur, &routeProvider,
		&rating, &comment, &ratedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.Destination.Address = destAddress.String
	rec.DriverID = driverID.String
	rec.DriverName = driverName.String
	rec.DriverPhone = driverPh.String
	rec.Status = models.Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	if len(routeGeom) > 0 {
		route := &models.CachedRoute{Provider: routeProvider.String}
		if err := json.Unmarshal(routeGeom, &route.Geometry); err == nil && len(route.Geometry) > 0 {
			if routeDist.Valid || routeDur.Valid {
				route.Summary = &models.RouteSummary{
					DistanceMeters:  routeDist.Float64,
					DurationSeconds: routeDur.Float64,
				}
			}
			rec.Route = route
		}
	}
	if rating.Valid {
		rec.RiderRating = int(rating.Int64)
	}
	rec.RiderComment = comment.String
	if ratedAt.Valid {
		t := ratedAt.Time
		rec.RiderRatedAt = &t
	}
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]models.RideRecord, error) {
	defer rows.Close()
	var recs []models.RideRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
