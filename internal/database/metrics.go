package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SaveMetric persists a cumulative counter so it survives restarts
func (s *Store) SaveMetric(ctx context.Context, metricName string, value float64) error {
	query := s.rebind(`
	INSERT INTO metrics (metric_name, metric_value)
	VALUES (?, ?)
	ON CONFLICT (metric_name) DO UPDATE SET metric_value = excluded.metric_value;`)

	if _, err := s.db.ExecContext(ctx, query, metricName, value); err != nil {
		return errors.Wrapf(err, "failed to save metric %s", metricName)
	}
	log.Debugf("Metric saved: %s = %f", metricName, value)
	return nil
}

// GetMetric returns 0 for metrics that were never saved
func (s *Store) GetMetric(ctx context.Context, metricName string) (float64, error) {
	var value float64
	query := s.rebind(`SELECT metric_value FROM metrics WHERE metric_name = ?;`)

	err := s.db.QueryRowContext(ctx, query, metricName).Scan(&value)
	if err == sql.ErrNoRows {
		log.Debugf("Metric %s not found in the database, defaulting to 0", metricName)
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrapf(err, "failed to get metric %s", metricName)
	}
	return value, nil
}
