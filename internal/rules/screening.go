package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ScreeningEngine evaluates operator-defined CEL rules over the
// feature vector. Screening rules supplement the built-in ladders:
// each matching rule contributes a fixed-point trigger before trust
// discounts. With none configured the engine contributes nothing.
type ScreeningEngine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*compiledScreeningRule
}

type compiledScreeningRule struct {
	config  *domain.ScreeningRule
	program cel.Program
}

// NewScreeningEngine creates a screening engine with the 20 feature
// variables plus amount and payee_name bound into the CEL environment.
func NewScreeningEngine() (*ScreeningEngine, error) {
	opts := make([]cel.EnvOption, 0, domain.FeatureCount+2)
	for _, name := range domain.FeatureNames() {
		opts = append(opts, cel.Variable(name, cel.DoubleType))
	}
	opts = append(opts,
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("payee_name", cel.StringType),
	)

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ScreeningEngine{
		env:           env,
		compiledRules: make(map[string]*compiledScreeningRule),
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *ScreeningEngine) ValidateRule(cfg *domain.ScreeningRule) error {
	if cfg == nil {
		return fmt.Errorf("screening rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *ScreeningEngine) LoadRule(cfg *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *ScreeningEngine) LoadRules(configs []*domain.ScreeningRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *ScreeningEngine) ReloadRules(configs []*domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*compiledScreeningRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// Evaluate runs all loaded screening rules against the features and
// returns the triggers for rules that matched. Evaluation errors on a
// single rule are swallowed: a broken screening rule must never block
// scoring.
func (e *ScreeningEngine) Evaluate(f *domain.FeatureVector, amount float64, payeeName string) []domain.RuleTrigger {
	e.mu.RLock()
	rules := make([]*compiledScreeningRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := f.Map()
	activation["amount"] = amount
	activation["payee_name"] = payeeName

	var triggers []domain.RuleTrigger
	for _, rule := range rules {
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			continue
		}
		matched, ok := out.(types.Bool)
		if !ok || !bool(matched) {
			continue
		}

		severity := rule.config.Severity
		if severity == "" {
			severity = domain.SeverityMedium
		}
		reason := rule.config.Reason
		if reason == "" {
			reason = rule.config.Name
		}

		triggers = append(triggers, domain.RuleTrigger{
			RuleID:   rule.config.ID,
			Points:   rule.config.Points,
			Reason:   reason,
			Severity: severity,
		})
	}

	return triggers
}

// RulesCount returns the number of loaded screening rules.
func (e *ScreeningEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *ScreeningEngine) GetLoadedRules() []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreeningRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.config)
	}
	return rules
}

// Close cleans up the engine.
func (e *ScreeningEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*compiledScreeningRule)
	return nil
}

func (e *ScreeningEngine) compileRule(cfg *domain.ScreeningRule) (*compiledScreeningRule, error) {
	if cfg.Points < 0 {
		return nil, fmt.Errorf("rule %s: points must be non-negative", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledScreeningRule{
		config:  cfg,
		program: program,
	}, nil
}
