package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mailsift/invoicesync/internal/model"
)

// CreateRule inserts a new exclusion rule.
func (s *Store) CreateRule(ctx context.Context, rule *model.Rule) error {
	if rule.ID == "" {
		rule.ID = model.NewID()
	}
	if rule.Type == "" {
		rule.Type = "exclude"
	}
	rule.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, type, condition_type, condition_value, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Type, rule.ConditionType, rule.ConditionValue, rule.Active, rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

// ListRules returns all rules.
func (s *Store) ListRules(ctx context.Context) ([]model.Rule, error) {
	var rules []model.Rule
	err := s.db.SelectContext(ctx, &rules, `SELECT * FROM rules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// ListActiveRules returns active rules, loaded once per sync run.
func (s *Store) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	var rules []model.Rule
	err := s.db.SelectContext(ctx, &rules, `SELECT * FROM rules WHERE active = true ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	return rules, nil
}

// DeleteRule removes a rule by ID.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
