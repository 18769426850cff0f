package model

import (
	"fmt"
	"os"

	"github.com/andresmejia3/biogate/internal/types"
	"github.com/google/cel-go/cel"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Rule maps a CEL condition over the profile to a product category.
type Rule struct {
	Name     string `yaml:"name"`
	When     string `yaml:"when"`
	Category string `yaml:"category"`
}

// RuleSet is the on-disk form of a rule-list recommender.
type RuleSet struct {
	Default string `yaml:"default"`
	Rules   []Rule `yaml:"rules"`
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// RuleRecommender evaluates rules in order; the first one that holds wins.
type RuleRecommender struct {
	Default string
	rules   []compiledRule
}

// LoadRules reads and compiles a YAML rule set.
func LoadRules(path string) (*RuleRecommender, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var set RuleSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	r, err := NewRuleRecommender(set)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// NewRuleRecommender compiles every rule up front so a bad expression fails at startup.
func NewRuleRecommender(set RuleSet) (*RuleRecommender, error) {
	env, err := cel.NewEnv(
		cel.Variable("profile", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	r := &RuleRecommender{Default: set.Default}
	for i, rule := range set.Rules {
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule-%d", i+1)
		}
		if rule.Category == "" {
			return nil, fmt.Errorf("rule %s has no category", rule.Name)
		}
		ast, issues := env.Compile(rule.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: compile error: %w", rule.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s: expression must be boolean, got %v", rule.Name, ast.OutputType())
		}
		prg, err := env.Program(ast, cel.CostLimit(100000))
		if err != nil {
			return nil, fmt.Errorf("rule %s: program creation error: %w", rule.Name, err)
		}
		r.rules = append(r.rules, compiledRule{Rule: rule, prg: prg})
	}
	if len(r.rules) == 0 && r.Default == "" {
		return nil, fmt.Errorf("rule set is empty and has no default category")
	}
	return r, nil
}

// Recommend returns the category of the first matching rule, or the default.
// A rule that fails to evaluate (e.g. a missing attribute) counts as not matching.
func (r *RuleRecommender) Recommend(profile types.CustomerProfile) (types.Recommendation, error) {
	facts := map[string]any{"profile": profile.Facts()}
	for _, rule := range r.rules {
		out, _, err := rule.prg.Eval(facts)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"rule":     rule.Name,
				"customer": profile.CustomerID,
			}).Debug("rule evaluation failed")
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return types.Recommendation{Category: rule.Category, Source: rule.Name}, nil
		}
	}
	if r.Default == "" {
		return types.Recommendation{}, fmt.Errorf("customer %s: %w", profile.CustomerID, ErrNoRecommendation)
	}
	return types.Recommendation{Category: r.Default, Source: "default"}, nil
}

func (r *RuleRecommender) Close() error { return nil }
