package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

// RestaurantRepository implements domain.RestaurantRepository for PostgreSQL.
type RestaurantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRestaurantRepository creates a new PostgreSQL restaurant repository.
func NewRestaurantRepository(db *sql.DB, logger *slog.Logger) *RestaurantRepository {
	return &RestaurantRepository{db: db, logger: logger.With("component", "restaurant_repository")}
}

const upsertRestaurantQuery = `
	INSERT INTO restaurants (
		google_id, google_name, google_display_name,
		street_type, street_name, street_number, street_complement,
		street_neighborhood, postalcode, city, state, country,
		business_status, editorial_summary, google_url,
		latitude, longitude, ratings, vegetarian_food, website,
		opening_hours_description
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17, $18, $19, $20, $21
	)
	ON CONFLICT (google_id) DO UPDATE SET
		google_name = EXCLUDED.google_name,
		google_display_name = EXCLUDED.google_display_name,
		street_type = EXCLUDED.street_type,
		street_name = EXCLUDED.street_name,
		street_number = EXCLUDED.street_number,
		street_complement = EXCLUDED.street_complement,
		street_neighborhood = EXCLUDED.street_neighborhood,
		postalcode = EXCLUDED.postalcode,
		city = EXCLUDED.city,
		state = EXCLUDED.state,
		country = EXCLUDED.country,
		business_status = EXCLUDED.business_status,
		editorial_summary = EXCLUDED.editorial_summary,
		google_url = EXCLUDED.google_url,
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		ratings = EXCLUDED.ratings,
		vegetarian_food = EXCLUDED.vegetarian_food,
		website = EXCLUDED.website,
		opening_hours_description = EXCLUDED.opening_hours_description,
		updated_at = CURRENT_TIMESTAMP
	RETURNING id, (xmax = 0) AS created;
`

// Replace upserts the restaurant and swaps its child rows inside a single
// transaction. Readers never observe a half-replaced week of opening hours.
func (r *RestaurantRepository) Replace(ctx context.Context, snap domain.RestaurantSnapshot) (int64, bool, error) {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	rest := snap.Restaurant
	a := rest.Address
	var id int64
	var created bool
	err = txn.QueryRowContext(ctx, upsertRestaurantQuery,
		rest.GoogleID, rest.GoogleName, rest.GoogleDisplayName,
		a.StreetType, a.StreetName, a.StreetNumber, a.StreetComplement,
		a.StreetNeighborhood, a.PostalCode, a.City, a.State, a.Country,
		rest.BusinessStatus, rest.EditorialSummary, rest.GoogleURL,
		rest.Latitude, rest.Longitude, rest.Rating, rest.VegetarianFood, rest.Website,
		rest.OpeningHoursDescription,
	).Scan(&id, &created)
	if err != nil {
		return 0, false, mapError("upsert restaurant", err)
	}

	if _, err := txn.ExecContext(ctx, `DELETE FROM opening_hours WHERE restaurant_id = $1`, id); err != nil {
		return 0, false, mapError("delete opening hours", err)
	}
	if _, err := txn.ExecContext(ctx, `DELETE FROM restaurant_types WHERE restaurant_id = $1`, id); err != nil {
		return 0, false, mapError("delete restaurant types", err)
	}

	if err := r.copyHours(ctx, txn, id, snap.Hours); err != nil {
		return 0, false, err
	}
	if err := r.insertTypes(ctx, txn, id, snap.Types); err != nil {
		return 0, false, err
	}

	if err := txn.Commit(); err != nil {
		return 0, false, mapError("commit", err)
	}
	return id, created, nil
}

func (r *RestaurantRepository) copyHours(ctx context.Context, txn *sql.Tx, id int64, hours []domain.OpeningHours) error {
	if len(hours) == 0 {
		return nil
	}
	stmt, err := txn.PrepareContext(ctx, pq.CopyIn("opening_hours", "restaurant_id", "day_of_week", "opens_at", "closes_at", "is_opened"))
	if err != nil {
		return mapError("prepare opening hours copy", err)
	}
	for _, h := range hours {
		if _, err := stmt.ExecContext(ctx, id, h.Day.Name(), h.OpensAt, h.ClosesAt, h.IsOpened); err != nil {
			// Close the statement to avoid connection issues
			_ = stmt.Close()
			return mapError("copy opening hours", err)
		}
	}
	// The final empty Exec flushes the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return mapError("flush opening hours copy", err)
	}
	return stmt.Close()
}

func (r *RestaurantRepository) insertTypes(ctx context.Context, txn *sql.Tx, id int64, types []domain.RestaurantType) error {
	if len(types) == 0 {
		return nil
	}
	names := make([]string, len(types))
	primary := ""
	for i, t := range types {
		names[i] = t.Name
		if t.IsPrimary {
			primary = t.Name
		}
	}
	_, err := txn.ExecContext(ctx, `
		INSERT INTO restaurant_types (restaurant_id, restaurant_type, is_primary_type)
		SELECT $1, t.name, COALESCE(t.name = $3, FALSE)
		FROM unnest($2::text[]) AS t(name)
		ON CONFLICT (restaurant_id, restaurant_type) DO NOTHING`,
		id, pq.Array(names), primary)
	if err != nil {
		return mapError("insert restaurant types", err)
	}
	return nil
}

// FindByGoogleID loads the aggregate with its children. It returns nil, nil
// when no restaurant has that google_id.
func (r *RestaurantRepository) FindByGoogleID(ctx context.Context, googleID string) (*domain.RestaurantSnapshot, error) {
	var snap domain.RestaurantSnapshot
	rest := &snap.Restaurant
	a := &rest.Address
	err := r.db.QueryRowContext(ctx, `
		SELECT id, google_id, google_name, google_display_name,
			street_type, street_name, street_number, street_complement,
			street_neighborhood, postalcode, city, state, country,
			business_status, editorial_summary, google_url,
			latitude, longitude, ratings, vegetarian_food, website,
			opening_hours_description, created_at, updated_at
		FROM restaurants WHERE google_id = $1`, googleID,
	).Scan(&rest.ID, &rest.GoogleID, &rest.GoogleName, &rest.GoogleDisplayName,
		&a.StreetType, &a.StreetName, &a.StreetNumber, &a.StreetComplement,
		&a.StreetNeighborhood, &a.PostalCode, &a.City, &a.State, &a.Country,
		&rest.BusinessStatus, &rest.EditorialSummary, &rest.GoogleURL,
		&rest.Latitude, &rest.Longitude, &rest.Rating, &rest.VegetarianFood, &rest.Website,
		&rest.OpeningHoursDescription, &rest.CreatedAt, &rest.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load restaurant %s: %w", googleID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT day_of_week, to_char(opens_at, 'HH24:MI'), to_char(closes_at, 'HH24:MI'), is_opened
		FROM opening_hours WHERE restaurant_id = $1 ORDER BY id`, rest.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load opening hours: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h domain.OpeningHours
		var day string
		if err := rows.Scan(&day, &h.OpensAt, &h.ClosesAt, &h.IsOpened); err != nil {
			return nil, err
		}
		d, ok := domain.WeekdayFromName(day)
		if !ok {
			r.logger.Warn("unknown day name in opening_hours", "restaurant_id", rest.ID, "day", day)
			continue
		}
		h.Day = d
		snap.Hours = append(snap.Hours, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	typeRows, err := r.db.QueryContext(ctx, `
		SELECT restaurant_type, is_primary_type
		FROM restaurant_types WHERE restaurant_id = $1 ORDER BY id`, rest.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load restaurant types: %w", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var t domain.RestaurantType
		if err := typeRows.Scan(&t.Name, &t.IsPrimary); err != nil {
			return nil, err
		}
		snap.Types = append(snap.Types, t)
	}
	return &snap, typeRows.Err()
}

// MissingNames keeps the input order of names.
func (r *RestaurantRepository) MissingNames(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT n.name
		FROM unnest($1::text[]) WITH ORDINALITY AS n(name, pos)
		WHERE NOT EXISTS (SELECT 1 FROM restaurants r WHERE r.google_name = n.name)
		ORDER BY n.pos`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to query missing names: %w", err)
	}
	return scanStrings(rows)
}

func (r *RestaurantRepository) StaleGoogleIDs(ctx context.Context, keepNames []string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT google_id FROM restaurants
		WHERE google_name IS NULL OR NOT (google_name = ANY($1::text[]))
		ORDER BY google_id`, pq.Array(keepNames))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale restaurants: %w", err)
	}
	return scanStrings(rows)
}

func (r *RestaurantRepository) Delete(ctx context.Context, googleID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM restaurants WHERE google_id = $1`, googleID); err != nil {
		return mapError("delete restaurant", err)
	}
	return nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// mapError translates races the caller may retry into domain.ErrPersistenceConflict.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001", "40P01": // unique_violation, serialization_failure, deadlock_detected
			return fmt.Errorf("%s: %w: %s", op, domain.ErrPersistenceConflict, pqErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
