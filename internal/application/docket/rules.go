package docket

import (
	"context"

	domaindocket "github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

// RuleAdminService manages the rule configuration: CRUD plus the validation
// pass that catches contradictory rules before they reach the engine.
type RuleAdminService struct {
	rules  domaindocket.TaskRuleRepository
	logger logging.Logger
}

// NewRuleAdminService wires the rule administration service.
func NewRuleAdminService(rules domaindocket.TaskRuleRepository, logger logging.Logger) *RuleAdminService {
	return &RuleAdminService{rules: rules, logger: logger.Named("rule-admin")}
}

// ValidationReport lists every structural or conflict problem found in the
// rule set.
type ValidationReport struct {
	RuleCount int      `json:"rule_count"`
	Problems  []string `json:"problems,omitempty"`
}

// Valid reports whether the rule set passed.
func (r *ValidationReport) Valid() bool { return len(r.Problems) == 0 }

// ValidateAll runs the conflict detection pass over the whole rule table.
// Contradictory rules are configuration errors that should surface here, at
// edit time, not during event evaluation.
func (s *RuleAdminService) ValidateAll(ctx context.Context) (*ValidationReport, error) {
	rules, err := s.rules.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	report := &ValidationReport{RuleCount: len(rules)}
	for _, err := range domaindocket.ValidateRules(rules) {
		report.Problems = append(report.Problems, err.Error())
	}
	if !report.Valid() {
		s.logger.Warn("rule validation found problems",
			logging.Int("rules", report.RuleCount),
			logging.Int("problems", len(report.Problems)))
	}
	return report, nil
}

// CreateRule validates and stores a new rule.
func (s *RuleAdminService) CreateRule(ctx context.Context, r *domaindocket.TaskRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.rules.Create(ctx, r)
}

// UpdateRule validates and stores rule changes.
func (s *RuleAdminService) UpdateRule(ctx context.Context, r *domaindocket.TaskRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.rules.Update(ctx, r)
}

// DeleteRule removes a rule.  Existing tasks keep their rule reference for
// audit; only future evaluations are affected.
func (s *RuleAdminService) DeleteRule(ctx context.Context, id int64) error {
	return s.rules.Delete(ctx, id)
}

// ListRules returns the whole rule table.
func (s *RuleAdminService) ListRules(ctx context.Context) ([]*domaindocket.TaskRule, error) {
	return s.rules.ListAll(ctx)
}
