package store

import (
	"context"
	"time"

	"resale-sync-service/internal/models"
)

// EnsureBudgetWindow creates a zero-usage budget row for the provider's
// current window if one does not exist yet. Idempotent.
func (s *Store) EnsureBudgetWindow(ctx context.Context, providerName string, window time.Time, limit int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_budgets (provider, window_start, used, call_limit)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (provider, window_start) DO NOTHING`,
		providerName, window, limit)
	return err
}

// TryReserveCalls atomically reserves n calls against the provider's
// budget for the given window. The check and increment are one statement,
// so two schedulers can never jointly overspend. Returns false when the
// reservation would exceed the limit.
func (s *Store) TryReserveCalls(ctx context.Context, providerName string, window time.Time, n int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rate_budgets
		SET used = used + $3
		WHERE provider = $1 AND window_start = $2 AND used + $3 < call_limit`,
		providerName, window, n)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// BudgetUsage returns the budget rows for all providers in a window
func (s *Store) BudgetUsage(ctx context.Context, window time.Time) ([]models.RateBudget, error) {
	var budgets []models.RateBudget
	err := s.db.SelectContext(ctx, &budgets,
		"SELECT * FROM rate_budgets WHERE window_start = $1", window)
	return budgets, err
}
