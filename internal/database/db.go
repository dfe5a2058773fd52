package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cryptoalerts/internal/logger"
	"cryptoalerts/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrAlertNotFound is returned when an alert id does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// Store wraps the Postgres connection and exposes the alert table
// operations. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens the database connection and verifies it with a ping.
func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Set connection pool parameters
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	logger.Log.Info("Database connection established")
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAlert inserts a new price alert
func (s *Store) CreateAlert(ctx context.Context, alert *models.PriceAlert) error {
	query := `
		INSERT INTO price_alerts (id, user_id, cryptocurrency, target_price, condition, is_active, email_notification, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		alert.ID,
		alert.UserID,
		alert.Cryptocurrency,
		alert.TargetPrice,
		alert.Condition,
		alert.IsActive,
		alert.EmailNotification,
		alert.CreatedAt,
		alert.UpdatedAt,
	)

	if err != nil {
		logger.Log.Error("Failed to create alert in database",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// PendingAlerts returns all alerts eligible for evaluation: active and not
// yet triggered, with the owner's email joined in for notification dispatch.
func (s *Store) PendingAlerts(ctx context.Context) ([]*models.PriceAlert, error) {
	query := `
		SELECT a.id, a.user_id, a.cryptocurrency, a.target_price, a.condition,
		       a.is_active, a.triggered_at, a.email_notification,
		       a.created_at, a.updated_at, COALESCE(u.email, '')
		FROM price_alerts a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.is_active = true AND a.triggered_at IS NULL
		ORDER BY a.created_at
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		logger.Log.Error("Failed to query pending alerts", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// MarkTriggered flips the given alerts to triggered in one batched update.
// The triggered_at IS NULL guard makes the transition safe when two passes
// overlap: whichever update lands first wins and the other touches no rows.
// Returns the number of rows actually transitioned.
func (s *Store) MarkTriggered(ctx context.Context, ids []string, triggeredAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE price_alerts
		SET triggered_at = $1, is_active = false, updated_at = $1
		WHERE id = ANY($2) AND triggered_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, triggeredAt, pq.Array(ids))
	if err != nil {
		logger.Log.Error("Failed to mark alerts triggered",
			zap.Int("alert_count", len(ids)),
			zap.Error(err),
		)
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return rowsAffected, nil
}

// AlertByID retrieves an alert by its ID
func (s *Store) AlertByID(ctx context.Context, id string) (*models.PriceAlert, error) {
	query := `
		SELECT id, user_id, cryptocurrency, target_price, condition,
		       is_active, triggered_at, email_notification, created_at, updated_at, ''
		FROM price_alerts
		WHERE id = $1
	`

	var alert models.PriceAlert
	var triggeredAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&alert.ID,
		&alert.UserID,
		&alert.Cryptocurrency,
		&alert.TargetPrice,
		&alert.Condition,
		&alert.IsActive,
		&triggeredAt,
		&alert.EmailNotification,
		&alert.CreatedAt,
		&alert.UpdatedAt,
		&alert.Email,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		logger.Log.Error("Failed to retrieve alert",
			zap.String("alert_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	if triggeredAt.Valid {
		t := triggeredAt.Time
		alert.TriggeredAt = &t
	}

	return &alert, nil
}

// AlertsByUserID retrieves all alerts owned by a user, newest first.
func (s *Store) AlertsByUserID(ctx context.Context, userID string) ([]*models.PriceAlert, error) {
	query := `
		SELECT id, user_id, cryptocurrency, target_price, condition,
		       is_active, triggered_at, email_notification, created_at, updated_at, ''
		FROM price_alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		logger.Log.Error("Failed to query alerts by user ID",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// AllAlerts retrieves every alert, newest first.
func (s *Store) AllAlerts(ctx context.Context) ([]*models.PriceAlert, error) {
	query := `
		SELECT id, user_id, cryptocurrency, target_price, condition,
		       is_active, triggered_at, email_notification, created_at, updated_at, ''
		FROM price_alerts
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		logger.Log.Error("Failed to query all alerts", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// DeleteAlert deletes an alert by ID
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	query := `DELETE FROM price_alerts WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		logger.Log.Error("Failed to delete alert",
			zap.String("alert_id", id),
			zap.Error(err),
		)
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAlertNotFound
	}

	return nil
}

// DeactivateAlertsForUser marks all of a user's alerts inactive without
// setting triggered_at. Invoked when the user's subscription lapses; the
// alerts stay pending-shaped but drop out of the evaluation query.
func (s *Store) DeactivateAlertsForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE price_alerts
		SET is_active = false, updated_at = $1
		WHERE user_id = $2 AND is_active = true
	`

	result, err := s.db.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		logger.Log.Error("Failed to deactivate alerts for user",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, err
	}

	return result.RowsAffected()
}

// Helper function to scan alert rows
func scanAlerts(rows *sql.Rows) ([]*models.PriceAlert, error) {
	var alerts []*models.PriceAlert

	for rows.Next() {
		var alert models.PriceAlert
		var triggeredAt sql.NullTime

		err := rows.Scan(
			&alert.ID,
			&alert.UserID,
			&alert.Cryptocurrency,
			&alert.TargetPrice,
			&alert.Condition,
			&alert.IsActive,
			&triggeredAt,
			&alert.EmailNotification,
			&alert.CreatedAt,
			&alert.UpdatedAt,
			&alert.Email,
		)

		if err != nil {
			return nil, err
		}

		if triggeredAt.Valid {
			t := triggeredAt.Time
			alert.TriggeredAt = &t
		}

		alerts = append(alerts, &alert)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}
