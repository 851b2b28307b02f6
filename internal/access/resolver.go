package access

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule grants a level on every table whose name matches Pattern.
type Rule struct {
	Pattern string
	Level   Level
}

// Resolver maps a user and a table name to a Level.
type Resolver struct {
	AnonymousAccess Level
	PublicRules     []Rule
	UserRules       map[string][]Rule
	Admins          map[string]bool
}

// NewResolver returns a resolver that denies everything until rules are added.
func NewResolver() *Resolver {
	return &Resolver{
		AnonymousAccess: None,
		PublicRules:     make([]Rule, 0),
		UserRules:       make(map[string][]Rule),
		Admins:          make(map[string]bool),
	}
}

func (r *Resolver) SetAnonymousAccess(level Level) {
	r.AnonymousAccess = level
}

func (r *Resolver) AddAdmin(username string) {
	r.Admins[username] = true
}

// AddPublicRule adds a rule that applies to every user, anonymous or not.
func (r *Resolver) AddPublicRule(pattern string, level Level) {
	r.PublicRules = append(r.PublicRules, Rule{Pattern: pattern, Level: level})
}

func (r *Resolver) AddUserRule(username, pattern string, level Level) {
	r.UserRules[username] = append(r.UserRules[username], Rule{Pattern: pattern, Level: level})
}

// Resolve returns the level a user holds on table.
//
// Admins always win. A named user's own rules are consulted next, then
// public rules, then the anonymous default for anonymous users. Within a
// rule list the highest matching level applies, and a matching rule with
// level None denies access outright.
func (r *Resolver) Resolve(user *UserInfo, table string) Level {
	if user != nil && user.IsAdmin {
		return Admin
	}
	if user != nil && !user.IsAnonymous && r.Admins[user.Name] {
		return Admin
	}

	if user != nil && !user.IsAnonymous {
		if level, ok := matchRules(r.UserRules[user.Name], table); ok {
			return level
		}
	}

	if level, ok := matchRules(r.PublicRules, table); ok {
		return level
	}

	if user == nil || user.IsAnonymous {
		return r.AnonymousAccess
	}
	return None
}

func matchRules(rules []Rule, table string) (Level, bool) {
	best, matched := None, false
	for _, rule := range rules {
		if !matchPattern(rule.Pattern, table) {
			continue
		}
		if !matched || rule.Level > best {
			best = rule.Level
		}
		matched = true
	}
	return best, matched
}

// matchPattern matches table names case-insensitively, since MySQL on most
// platforms and PostgreSQL unquoted identifiers fold case.
func matchPattern(pattern, table string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	table = strings.ToLower(strings.TrimSpace(table))
	if pattern == "" || table == "" {
		return false
	}
	if pattern == table {
		return true
	}
	matched, err := doublestar.Match(pattern, table)
	return err == nil && matched
}
