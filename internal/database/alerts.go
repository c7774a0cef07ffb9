package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"crypto-price-alerts/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const alertColumns = `a.id, a.user_id, a.coin_id, a.condition, a.target_price, a.triggered, a.triggered_at, a.created_at`

// InsertOwner saves the contact details of an alert owner
func (s *Store) InsertOwner(ctx context.Context, owner types.Owner) (types.Owner, error) {
	query := s.rebind(`
	INSERT INTO users (email, telegram_chat_id, created_at)
	VALUES (?, ?, ?)
	RETURNING id;`)

	err := s.db.QueryRowContext(ctx, query,
		nullString(owner.Email), nullInt64(owner.TelegramChatID), formatTime(time.Now()),
	).Scan(&owner.ID)
	if err != nil {
		return types.Owner{}, errors.Wrap(err, "failed to insert owner")
	}
	return owner, nil
}

// InsertAlert saves a new, unresolved alert
func (s *Store) InsertAlert(ctx context.Context, alert types.Alert) (types.Alert, error) {
	comparator, err := types.ParseComparator(string(alert.Comparator))
	if err != nil {
		return types.Alert{}, err
	}
	if strings.TrimSpace(alert.AssetID) == "" {
		return types.Alert{}, errors.New("alert needs a coin id")
	}
	if !alert.TargetPrice.IsPositive() {
		return types.Alert{}, errors.New("alert target price must be positive")
	}

	alert.Comparator = comparator
	alert.Resolved = false
	alert.ResolvedAt = nil
	alert.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	query := s.rebind(`
	INSERT INTO alerts (user_id, coin_id, condition, target_price, triggered, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	RETURNING id;`)

	err = s.db.QueryRowContext(ctx, query,
		alert.OwnerID, alert.AssetID, string(alert.Comparator), alert.TargetPrice, false, formatTime(alert.CreatedAt),
	).Scan(&alert.ID)
	if err != nil {
		return types.Alert{}, errors.Wrap(err, "failed to insert alert")
	}

	log.WithFields(log.Fields{
		"alert_id": alert.ID,
		"owner_id": alert.OwnerID,
		"coin_id":  alert.AssetID,
	}).Debugf("Alert inserted: %s %s", alert.Comparator, alert.TargetPrice)
	return alert, nil
}

// ListUnresolved returns every alert that has not fired yet, joined with the
// owner's contact details, in id order. Rows that cannot be parsed are logged
// and left out.
func (s *Store) ListUnresolved(ctx context.Context) ([]types.Alert, error) {
	query := s.rebind(`
	SELECT ` + alertColumns + `, u.id, u.email, u.telegram_chat_id
	FROM alerts a
	JOIN users u ON u.id = a.user_id
	WHERE a.triggered = ?
	ORDER BY a.id;`)

	rows, err := s.db.QueryContext(ctx, query, false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query unresolved alerts")
	}
	defer rows.Close()

	alerts := make([]types.Alert, 0)
	for rows.Next() {
		var (
			row    alertRow
			owner  types.Owner
			email  sql.NullString
			chatID sql.NullInt64
		)
		dest := append(row.dest(), &owner.ID, &email, &chatID)
		// a broken row only costs that alert, the rest are still monitored
		if err := rows.Scan(dest...); err != nil {
			log.WithField("alert_id", row.alert.ID).Warnf("Skipping unreadable alert row: %v", err)
			continue
		}
		alert, err := row.toAlert()
		if err != nil {
			log.WithField("alert_id", row.alert.ID).Warnf("Skipping malformed alert: %v", err)
			continue
		}
		owner.Email = email.String
		owner.TelegramChatID = chatID.Int64
		alert.Owner = owner
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate alerts")
	}

	return alerts, nil
}

// MarkResolved flips an unresolved alert to resolved. It returns
// ErrAlreadyResolved when no unresolved alert with that id exists, so a
// second writer can tell it must not notify again.
func (s *Store) MarkResolved(ctx context.Context, alertID int64) error {
	query := s.rebind(`
	UPDATE alerts
	SET triggered = ?, triggered_at = ?
	WHERE id = ? AND triggered = ?;`)

	res, err := s.db.ExecContext(ctx, query, true, formatTime(time.Now()), alertID, false)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve alert %d", alertID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to resolve alert %d", alertID)
	}
	if n == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// GetAlertsByOwner lists all alerts of one owner, newest first
func (s *Store) GetAlertsByOwner(ctx context.Context, ownerID int64) ([]types.Alert, error) {
	query := s.rebind(`
	SELECT ` + alertColumns + `
	FROM alerts a
	WHERE a.user_id = ?
	ORDER BY a.created_at DESC, a.id DESC;`)

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query alerts for owner %d", ownerID)
	}
	defer rows.Close()

	alerts := make([]types.Alert, 0)
	for rows.Next() {
		var row alertRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, errors.Wrap(err, "failed to scan alert row")
		}
		alert, err := row.toAlert()
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate alerts")
	}
	return alerts, nil
}

// DeleteAlert removes an alert owned by ownerID
func (s *Store) DeleteAlert(ctx context.Context, ownerID, alertID int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM alerts WHERE id = ? AND user_id = ?;`), alertID, ownerID)
	if err != nil {
		return errors.Wrap(err, "failed to delete alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to delete alert")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// alertRow holds the raw columns of one alert until they are parsed
type alertRow struct {
	alert      types.Alert
	comparator string
	resolvedAt sql.NullString
	createdAt  string
}

func (r *alertRow) dest() []any {
	return []any{
		&r.alert.ID, &r.alert.OwnerID, &r.alert.AssetID, &r.comparator,
		&r.alert.TargetPrice, &r.alert.Resolved, &r.resolvedAt, &r.createdAt,
	}
}

func (r *alertRow) toAlert() (types.Alert, error) {
	alert := r.alert

	comparator, err := types.ParseComparator(r.comparator)
	if err != nil {
		return types.Alert{}, errors.Wrapf(err, "alert %d", alert.ID)
	}
	alert.Comparator = comparator

	if alert.CreatedAt, err = parseTime(r.createdAt); err != nil {
		return types.Alert{}, errors.Wrapf(err, "alert %d", alert.ID)
	}
	if r.resolvedAt.Valid {
		resolvedAt, err := parseTime(r.resolvedAt.String)
		if err != nil {
			return types.Alert{}, errors.Wrapf(err, "alert %d", alert.ID)
		}
		alert.ResolvedAt = &resolvedAt
	}
	return alert, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
