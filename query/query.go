// Package query implements the boolean key expressions accepted by the
// query endpoints.
//
// An expression is in conjunctive normal form: clauses are ANDed, literals
// inside a clause are ORed, and a literal may be negated with a leading '~'.
// The wire form mirrors the expression onto URL path segments:
//
//	a|b/~c
//
// matches records whose key is a or b, and is not c. Literals are
// percent-escaped so keys may contain '/', '|' and '~'.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrEmpty is returned when an expression has no clauses.
	ErrEmpty = errors.New("query: empty expression")
	// ErrEmptyClause is returned when a clause has no literals.
	ErrEmptyClause = errors.New("query: empty clause")
)

// Literal matches a single key, optionally negated.
type Literal struct {
	Key     string
	Negated bool
}

// Clause is a disjunction of literals.
type Clause []Literal

// Q is a conjunction of clauses.
type Q []Clause

// Parse decodes the wire form of an expression: clauses separated by '/',
// literals separated by '|', '~' prefix for negation, percent-escaped keys.
func Parse(s string) (Q, error) {
	if s == "" {
		return nil, ErrEmpty
	}

	var q Q
	for _, seg := range strings.Split(s, "/") {
		if seg == "" {
			return nil, ErrEmptyClause
		}

		var clause Clause
		for _, tok := range strings.Split(seg, "|") {
			negated := strings.HasPrefix(tok, "~")
			if negated {
				tok = tok[1:]
			}
			if tok == "" {
				return nil, fmt.Errorf("query: empty literal in clause %q", seg)
			}
			key, err := url.PathUnescape(tok)
			if err != nil {
				return nil, fmt.Errorf("query: bad literal %q: %w", tok, err)
			}
			clause = append(clause, Literal{Key: key, Negated: negated})
		}
		q = append(q, clause)
	}
	return q, nil
}

// String returns the canonical wire form of the expression. The result of
// String always parses back to an equal expression.
func (q Q) String() string {
	segs := make([]string, len(q))
	for i, clause := range q {
		lits := make([]string, len(clause))
		for j, l := range clause {
			lits[j] = l.String()
		}
		segs[i] = strings.Join(lits, "|")
	}
	return strings.Join(segs, "/")
}

// String returns the escaped wire form of the literal.
func (l Literal) String() string {
	esc := url.PathEscape(l.Key)
	// PathEscape leaves '~' alone; escape a leading one so it cannot be
	// mistaken for negation on the way back in.
	if strings.HasPrefix(esc, "~") {
		esc = "%7E" + esc[1:]
	}
	if l.Negated {
		return "~" + esc
	}
	return esc
}

// Eval reports whether a record whose key membership is described by has
// satisfies the expression. An empty expression is vacuously true.
func (q Q) Eval(has func(key string) bool) bool {
	for _, clause := range q {
		ok := false
		for _, l := range clause {
			if has(l.Key) != l.Negated {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// MatchesKey reports whether a record with exactly the given key satisfies
// the expression.
func (q Q) MatchesKey(key string) bool {
	return q.Eval(func(k string) bool { return k == key })
}

// Keys returns the distinct keys mentioned by the expression, in first
// mention order.
func (q Q) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, clause := range q {
		for _, l := range clause {
			if _, ok := seen[l.Key]; ok {
				continue
			}
			seen[l.Key] = struct{}{}
			keys = append(keys, l.Key)
		}
	}
	return keys
}
