package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"staysync/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Properties
// =============================================================================

func (s *PostgresStore) GetPropertyByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	query := `
		SELECT id, name, address, city, base_price, currency, default_min_stay, created_at, updated_at
		FROM properties WHERE id = $1`

	var p models.Property
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Address, &p.City, &p.BasePrice, &p.Currency, &p.DefaultMinStay, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// Integrations
// =============================================================================

const integrationCols = `id, property_id, marketplace, remote_account_id, remote_listing_id,
		markup_percent, markup_flat, access_token, refresh_token, token_expires_at,
		is_active, last_sync_at, created_at, updated_at`

func (s *PostgresStore) scanIntegration(row pgx.Row) (*models.Integration, error) {
	var i models.Integration
	err := row.Scan(
		&i.ID, &i.PropertyID, &i.Marketplace, &i.RemoteAccountID, &i.RemoteListingID,
		&i.MarkupPercent, &i.MarkupFlat, &i.AccessToken, &i.RefreshToken, &i.TokenExpiresAt,
		&i.IsActive, &i.LastSyncAt, &i.CreatedAt, &i.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *PostgresStore) UpsertIntegration(ctx context.Context, i *models.Integration) error {
	query := `
		INSERT INTO integrations (` + integrationCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (property_id, marketplace) DO UPDATE SET
			remote_account_id = EXCLUDED.remote_account_id,
			remote_listing_id = COALESCE(NULLIF(EXCLUDED.remote_listing_id, ''), integrations.remote_listing_id),
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		i.ID, i.PropertyID, i.Marketplace, i.RemoteAccountID, i.RemoteListingID,
		i.MarkupPercent, i.MarkupFlat, i.AccessToken, i.RefreshToken, i.TokenExpiresAt,
		i.IsActive, i.LastSyncAt, i.CreatedAt, i.UpdatedAt,
	).Scan(&i.ID)
}

func (s *PostgresStore) GetIntegrationByID(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	query := `SELECT ` + integrationCols + ` FROM integrations WHERE id = $1`
	return s.scanIntegration(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) GetIntegrationByProperty(ctx context.Context, propertyID uuid.UUID, marketplace string) (*models.Integration, error) {
	query := `SELECT ` + integrationCols + ` FROM integrations WHERE property_id = $1 AND marketplace = $2`
	return s.scanIntegration(s.pool.QueryRow(ctx, query, propertyID, marketplace))
}

func (s *PostgresStore) ListIntegrations(ctx context.Context, activeOnly bool) ([]models.Integration, error) {
	query := `SELECT ` + integrationCols + ` FROM integrations`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var integrations []models.Integration
	for rows.Next() {
		i, err := s.scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, *i)
	}
	return integrations, rows.Err()
}

// UpdateIntegrationTokens persists a refreshed credential. The update is
// conditional on the expiry the caller read before refreshing, so two
// concurrent reconciliations cannot silently overwrite each other's token:
// the loser sees updated=false and must re-read the row.
func (s *PostgresStore) UpdateIntegrationTokens(ctx context.Context, id uuid.UUID, access, refresh []byte, expiresAt time.Time, prevExpiry *time.Time) (bool, error) {
	query := `
		UPDATE integrations
		SET access_token = $2, refresh_token = COALESCE($3, refresh_token),
			token_expires_at = $4, updated_at = NOW()
		WHERE id = $1 AND token_expires_at IS NOT DISTINCT FROM $5`

	tag, err := s.pool.Exec(ctx, query, id, access, refresh, expiresAt, prevExpiry)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) TouchIntegrationSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE integrations SET last_sync_at = $2, updated_at = NOW() WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, at)
	return err
}

func (s *PostgresStore) DeactivateIntegration(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE integrations SET is_active = FALSE, updated_at = NOW() WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id)
	return err
}

// DeleteIntegration hard-deletes the row; sync_tasks cascade via FK.
func (s *PostgresStore) DeleteIntegration(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	return err
}

// =============================================================================
// Rate Overrides
// =============================================================================

func (s *PostgresStore) GetFutureRateOverrides(ctx context.Context, propertyID uuid.UUID, from time.Time) ([]models.RateOverride, error) {
	query := `
		SELECT id, property_id, date, price, min_stay
		FROM rate_overrides
		WHERE property_id = $1 AND date >= $2
		ORDER BY date`

	rows, err := s.pool.Query(ctx, query, propertyID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []models.RateOverride
	for rows.Next() {
		var o models.RateOverride
		if err := rows.Scan(&o.ID, &o.PropertyID, &o.Date, &o.Price, &o.MinStay); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// =============================================================================
// Bookings
// =============================================================================

const bookingCols = `id, property_id, check_in, check_out, guest_name, guest_phone, guest_email,
		total_price, currency, status, source, remote_id, created_at, updated_at, deleted_at`

func (s *PostgresStore) scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.PropertyID, &b.CheckIn, &b.CheckOut, &b.GuestName, &b.GuestPhone, &b.GuestEmail,
		&b.TotalPrice, &b.Currency, &b.Status, &b.Source, &b.RemoteID, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingCols + ` FROM bookings WHERE id = $1 AND deleted_at IS NULL`
	return s.scanBooking(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) GetBookingBySourceAndRemoteID(ctx context.Context, source, remoteID string) (*models.Booking, error) {
	query := `SELECT ` + bookingCols + ` FROM bookings WHERE source = $1 AND remote_id = $2`
	return s.scanBooking(s.pool.QueryRow(ctx, query, source, remoteID))
}

func (s *PostgresStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (source, remote_id) WHERE remote_id IS NOT NULL DO NOTHING
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		b.ID, b.PropertyID, b.CheckIn, b.CheckOut, b.GuestName, b.GuestPhone, b.GuestEmail,
		b.TotalPrice, b.Currency, b.Status, b.Source, b.RemoteID, b.CreatedAt, b.UpdatedAt, b.DeletedAt,
	).Scan(&b.ID)
	if err == pgx.ErrNoRows {
		return nil // concurrent pull already inserted this remote booking
	}
	return err
}

func (s *PostgresStore) UpdateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		UPDATE bookings SET
			check_in = $2, check_out = $3, guest_name = $4, guest_phone = $5, guest_email = $6,
			total_price = $7, currency = $8, status = $9, updated_at = NOW()
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.CheckIn, b.CheckOut, b.GuestName, b.GuestPhone, b.GuestEmail,
		b.TotalPrice, b.Currency, b.Status,
	)
	return err
}

func (s *PostgresStore) ListConfirmedFutureBookings(ctx context.Context, propertyID uuid.UUID, from time.Time) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingCols + `
		FROM bookings
		WHERE property_id = $1 AND status = 'confirmed' AND check_in >= $2 AND deleted_at IS NULL
		ORDER BY check_in`

	rows, err := s.pool.Query(ctx, query, propertyID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := s.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (s *PostgresStore) SoftDeleteBooking(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE bookings SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	_, err := s.pool.Exec(ctx, query, id)
	return err
}

// =============================================================================
// Sync Attempts (append-only audit log)
// =============================================================================

func (s *PostgresStore) CreateSyncAttempt(ctx context.Context, a *models.SyncAttempt) error {
	query := `
		INSERT INTO sync_attempts (integration_id, started_at, finished_at, success, synced, trigger, errors, pulled, created, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	errors := a.Errors
	if errors == nil {
		errors = json.RawMessage(`[]`)
	}

	return s.pool.QueryRow(ctx, query,
		a.IntegrationID, a.StartedAt, a.FinishedAt, a.Success, a.Synced, a.Trigger, errors, a.Pulled, a.Created, a.Updated,
	).Scan(&a.ID)
}

func (s *PostgresStore) ListSyncAttempts(ctx context.Context, integrationID uuid.UUID, limit int) ([]models.SyncAttempt, error) {
	query := `
		SELECT id, integration_id, started_at, finished_at, success, synced, trigger, errors, pulled, created, updated
		FROM sync_attempts
		WHERE integration_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, integrationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.SyncAttempt
	for rows.Next() {
		var a models.SyncAttempt
		if err := rows.Scan(
			&a.ID, &a.IntegrationID, &a.StartedAt, &a.FinishedAt, &a.Success, &a.Synced, &a.Trigger, &a.Errors, &a.Pulled, &a.Created, &a.Updated,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// =============================================================================
// Sync Tasks (deferred re-sync queue)
// =============================================================================

func (s *PostgresStore) EnqueueSyncTask(ctx context.Context, t *models.SyncTask) error {
	query := `
		INSERT INTO sync_tasks (integration_id, exclude_booking_id, status, attempts, max_attempts, next_retry_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		t.IntegrationID, t.ExcludeBookingID, t.Status, t.Attempts, t.MaxAttempts, t.NextRetryAt, t.LastError, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
}

func (s *PostgresStore) GetDueSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	query := `
		SELECT id, integration_id, exclude_booking_id, status, attempts, max_attempts, next_retry_at, last_error, created_at, updated_at
		FROM sync_tasks
		WHERE status = 'pending' AND next_retry_at <= NOW() AND attempts < max_attempts
		ORDER BY next_retry_at
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(
			&t.ID, &t.IntegrationID, &t.ExcludeBookingID, &t.Status, &t.Attempts, &t.MaxAttempts, &t.NextRetryAt, &t.LastError, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) UpdateSyncTask(ctx context.Context, t *models.SyncTask) error {
	query := `
		UPDATE sync_tasks SET
			status = $2, attempts = $3, next_retry_at = $4, last_error = $5, updated_at = NOW()
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, t.ID, t.Status, t.Attempts, t.NextRetryAt, t.LastError)
	return err
}
