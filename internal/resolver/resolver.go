// Package resolver matches free-text service and staff names against the
// salon's roster: exact match first, substring match otherwise.
package resolver

import (
	"strings"

	"github.com/wolfman30/yclients-mcp/internal/yclients"
)

// Kind is the outcome of a name resolution.
type Kind int

const (
	NotFound Kind = iota
	Resolved
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Result holds the single match when Kind is Resolved and every match when
// Kind is Ambiguous.
type Result[T any] struct {
	Kind    Kind
	Match   T
	Matches []T
}

func classify[T any](matches []T) Result[T] {
	switch len(matches) {
	case 0:
		return Result[T]{Kind: NotFound}
	case 1:
		return Result[T]{Kind: Resolved, Match: matches[0], Matches: matches}
	default:
		return Result[T]{Kind: Ambiguous, Matches: matches}
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MatchServices returns the services whose title equals query, or, when none
// does, those whose title contains query or is contained in it. Order follows
// the input.
func MatchServices(services []yclients.Service, query string) []yclients.Service {
	q := normalize(query)
	if q == "" {
		return nil
	}

	var exact []yclients.Service
	for _, svc := range services {
		if normalize(svc.Title) == q {
			exact = append(exact, svc)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	var partial []yclients.Service
	for _, svc := range services {
		title := normalize(svc.Title)
		if title == "" {
			continue
		}
		if strings.Contains(title, q) || strings.Contains(q, title) {
			partial = append(partial, svc)
		}
	}
	return partial
}

// MatchStaff works like MatchServices on names, except the substring pass
// compares whitespace-separated tokens so "Ольга" finds "Ольга Смирнова".
func MatchStaff(staff []yclients.Staff, query string) []yclients.Staff {
	q := normalize(query)
	if q == "" {
		return nil
	}

	var exact []yclients.Staff
	for _, s := range staff {
		if normalize(s.Name) == q {
			exact = append(exact, s)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	queryTokens := strings.Fields(q)
	var partial []yclients.Staff
	for _, s := range staff {
		if tokensOverlap(queryTokens, strings.Fields(normalize(s.Name))) {
			partial = append(partial, s)
		}
	}
	return partial
}

func tokensOverlap(query, name []string) bool {
	for _, q := range query {
		for _, n := range name {
			if strings.Contains(n, q) || strings.Contains(q, n) {
				return true
			}
		}
	}
	return false
}

// ResolveService matches query against active services only.
func ResolveService(services []yclients.Service, query string) Result[yclients.Service] {
	return classify(MatchServices(ActiveServices(services), query))
}

// ResolveStaff matches query against the whole roster.
func ResolveStaff(staff []yclients.Staff, query string) Result[yclients.Staff] {
	return classify(MatchStaff(staff, query))
}

// ActiveServices filters out inactive services, keeping order.
func ActiveServices(services []yclients.Service) []yclients.Service {
	out := make([]yclients.Service, 0, len(services))
	for _, svc := range services {
		if svc.IsActive() {
			out = append(out, svc)
		}
	}
	return out
}

// EligibleStaff returns, in roster order, the staff who can perform serviceID.
func EligibleStaff(staff []yclients.Staff, serviceID int) []yclients.Staff {
	var out []yclients.Staff
	for _, s := range staff {
		if s.CanPerform(serviceID) {
			out = append(out, s)
		}
	}
	return out
}

// ServiceTitles lists titles in input order.
func ServiceTitles(services []yclients.Service) []string {
	out := make([]string, 0, len(services))
	for _, svc := range services {
		out = append(out, svc.Title)
	}
	return out
}

// StaffNames lists names in input order.
func StaffNames(staff []yclients.Staff) []string {
	out := make([]string, 0, len(staff))
	for _, s := range staff {
		out = append(out, s.Name)
	}
	return out
}
