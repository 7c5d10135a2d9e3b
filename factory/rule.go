/*
Package factory converts JSON approval-rule definitions into expense rules.

PURPOSE:
  Approval rules arrive as JSON from the API and from demo scenarios. The
  factory validates the JSON shape and produces an *expense.ApprovalRule,
  so callers never construct rules field by field.

JSON SCHEMA:
  {
    "type": "Hybrid",                  // SpecificApprover | Percentage | Hybrid
    "percentage": 60,                  // Percentage, Hybrid
    "specificApproverId": "usr_cfo"    // SpecificApprover, Hybrid
  }

  Type names are matched case-insensitively; "specific_approver" is
  accepted as an alias of SpecificApprover.

PRESETS:
  Named presets cover common policies:
    "cfo-override":   SpecificApprover usr_cfo
    "majority":       Percentage 51
    "unanimous":      Percentage 100
    "cfo-or-60":      Hybrid usr_cfo / 60

USAGE:
  rule, err := factory.ParseRule(raw)
  rule, err := factory.Preset("majority")
*/
package factory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/warp/expense-engine/expense"
)

// RuleJSON is the JSON representation of an approval rule.
type RuleJSON struct {
	Type               string `json:"type"`
	Percentage         int    `json:"percentage,omitempty"`
	SpecificApproverID string `json:"specificApproverId,omitempty"`
}

// ParseRule parses and validates a JSON rule. Empty input or "null"
// means no rule.
func ParseRule(raw []byte) (*expense.ApprovalRule, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var rj RuleJSON
	if err := json.Unmarshal(raw, &rj); err != nil {
		return nil, expense.NewValidationError("approval_rule", fmt.Sprintf("invalid JSON: %v", err))
	}
	return rj.ToRule()
}

// ToRule converts and validates the rule.
func (rj RuleJSON) ToRule() (*expense.ApprovalRule, error) {
	t, err := parseRuleType(rj.Type)
	if err != nil {
		return nil, err
	}
	rule := &expense.ApprovalRule{
		Type:               t,
		Percentage:         rj.Percentage,
		SpecificApproverID: strings.TrimSpace(rj.SpecificApproverID),
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// FromRule converts a rule back to its JSON representation.
func FromRule(r *expense.ApprovalRule) *RuleJSON {
	if r == nil {
		return nil
	}
	return &RuleJSON{Type: string(r.Type), Percentage: r.Percentage, SpecificApproverID: r.SpecificApproverID}
}

func parseRuleType(s string) (expense.RuleType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "specificapprover", "specific_approver", "specific":
		return expense.RuleSpecificApprover, nil
	case "percentage", "percent":
		return expense.RulePercentage, nil
	case "hybrid":
		return expense.RuleHybrid, nil
	}
	return "", expense.NewValidationError("approval_rule.type", fmt.Sprintf("unknown rule type %q", s))
}

// =============================================================================
// PRESETS
// =============================================================================

var presets = map[string]RuleJSON{
	"cfo-override": {Type: string(expense.RuleSpecificApprover), SpecificApproverID: "usr_cfo"},
	"majority":     {Type: string(expense.RulePercentage), Percentage: 51},
	"unanimous":    {Type: string(expense.RulePercentage), Percentage: 100},
	"cfo-or-60":    {Type: string(expense.RuleHybrid), Percentage: 60, SpecificApproverID: "usr_cfo"},
}

// Preset returns the named rule.
func Preset(name string) (*expense.ApprovalRule, error) {
	rj, ok := presets[name]
	if !ok {
		return nil, expense.NewValidationError("approval_rule", fmt.Sprintf("unknown preset %q", name))
	}
	return rj.ToRule()
}

// PresetNames returns the preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
