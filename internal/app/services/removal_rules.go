package services

import (
	"fmt"
	"strings"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/member"
)

const (
	ReasonInactive = "Inactive"
	ReasonNotFound = "Not found in DB"
	ReasonManual   = "Manual"
)

// Group name classes. Names are the only identifier operators keep stable.
func isMandatoryJuniorGroup(name string) bool {
	return strings.HasPrefix(name, "M.JB") && !strings.Contains(name, "R. JB")
}

func isGuardianGroup(name string) bool {
	return strings.Contains(name, "R. JB")
}

func isGeneralGroup(name string) bool {
	return !strings.Contains(name, "JB")
}

func anyGroup(string) bool { return true }

// Rule pairs a group-name predicate with a member predicate.
type Rule struct {
	Name       string
	MatchGroup func(groupName string) bool
	Applies    func(c member.Classified) bool
	Reason     string
	// AgeBased rules never fire for adults or for members carrying both junior flags.
	AgeBased bool
	// Gated decisions go through the escalation gate before being queued.
	Gated bool
}

// Decision is one removal the rules want for a member in a group.
type Decision struct {
	Rule   string
	Reason string
	Gated  bool
}

// DefaultRules builds the rule list for the given junior threshold age.
func DefaultRules(threshold int) []Rule {
	return []Rule{
		{
			Name:       "mandatory-junior-under",
			MatchGroup: isMandatoryJuniorGroup,
			Applies:    func(c member.Classified) bool { return c.Found && c.JuniorUnder },
			Reason:     fmt.Sprintf("JB under %d in M.JB group", threshold),
			AgeBased:   true,
		},
		{
			Name:       "guardian-junior",
			MatchGroup: isGuardianGroup,
			Applies:    func(c member.Classified) bool { return c.Found && (c.JuniorUnder || c.JuniorNear) },
			Reason:     "JB member in R. JB group",
			AgeBased:   true,
		},
		{
			Name:       "general-junior-under",
			MatchGroup: isGeneralGroup,
			Applies:    func(c member.Classified) bool { return c.Found && c.JuniorUnder },
			Reason:     fmt.Sprintf("JB under %d in general group", threshold),
			AgeBased:   true,
		},
		{
			Name:       "general-junior-near",
			MatchGroup: isGeneralGroup,
			Applies:    func(c member.Classified) bool { return c.Found && c.JuniorNear },
			Reason:     fmt.Sprintf("JB over %d in general group", threshold),
			AgeBased:   true,
		},
		{
			Name:       "inactive",
			MatchGroup: anyGroup,
			Applies:    func(c member.Classified) bool { return c.Found && c.Status == member.StatusInactive },
			Reason:     ReasonInactive,
			Gated:      true,
		},
		{
			Name:       "not-found",
			MatchGroup: anyGroup,
			Applies:    func(c member.Classified) bool { return !c.Found },
			Reason:     ReasonNotFound,
			Gated:      true,
		},
	}
}

type RuleEngine struct {
	rules     []Rule
	protected *ProtectedSet
}

func NewRuleEngine(rules []Rule, protected *ProtectedSet) *RuleEngine {
	return &RuleEngine{rules: rules, protected: protected}
}

// Evaluate returns every decision whose rule matches. Protected phones never produce one.
func (e *RuleEngine) Evaluate(groupName string, c member.Classified) []Decision {
	if e.protected.Contains(c.Phone) {
		return nil
	}
	var out []Decision
	for _, r := range e.rules {
		if r.AgeBased && c.AgeExempt() {
			continue
		}
		if !r.MatchGroup(groupName) || !r.Applies(c) {
			continue
		}
		out = append(out, Decision{Rule: r.Name, Reason: r.Reason, Gated: r.Gated})
	}
	return out
}
