// Package constraint decides whether a write may touch a record.
//
// A condition is a list of alternatives separated by "|"; each alternative is
// a list of clauses separated by "&". A clause is "path=v1,v2" (the field
// equals one of the values) or "path!=v1,v2" (it equals none of them). Paths
// are dotted JSON paths into the record; array fields match when any element
// matches. Values compare case-insensitively. An empty condition allows
// everything.
//
//	Active=true&Source=digiway,idm
//	LicenseInfo.ClosedData=false|_Meta.Source=idm
package constraint

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Clause is a single comparison against a record field
type Clause struct {
	Path   string
	Negate bool
	Values []string
}

// Condition is a disjunction of clause groups
type Condition struct {
	Any [][]Clause
}

// Empty reports whether the condition allows everything
func (c Condition) Empty() bool {
	return len(c.Any) == 0
}

// Parse parses a condition expression
func Parse(expr string) (Condition, error) {
	var cond Condition
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return cond, nil
	}
	for _, alt := range strings.Split(expr, "|") {
		var group []Clause
		for _, raw := range strings.Split(alt, "&") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			cl, err := parseClause(raw)
			if err != nil {
				return Condition{}, err
			}
			group = append(group, cl)
		}
		if len(group) == 0 {
			return Condition{}, fmt.Errorf("empty alternative in condition %q", expr)
		}
		cond.Any = append(cond.Any, group)
	}
	return cond, nil
}

func parseClause(raw string) (Clause, error) {
	var cl Clause
	path, values, ok := strings.Cut(raw, "!=")
	if ok {
		cl.Negate = true
	} else if path, values, ok = strings.Cut(raw, "="); !ok {
		return cl, fmt.Errorf("invalid clause %q: missing '='", raw)
	}
	cl.Path = strings.TrimSpace(path)
	if cl.Path == "" {
		return cl, fmt.Errorf("invalid clause %q: missing field", raw)
	}
	for _, v := range strings.Split(values, ",") {
		cl.Values = append(cl.Values, strings.TrimSpace(v))
	}
	return cl, nil
}

// Match evaluates the condition against a JSON document
func (c Condition) Match(doc []byte) bool {
	if c.Empty() {
		return true
	}
	for _, group := range c.Any {
		if matchAll(doc, group) {
			return true
		}
	}
	return false
}

func matchAll(doc []byte, group []Clause) bool {
	for _, cl := range group {
		if cl.matches(doc) == cl.Negate {
			return false
		}
	}
	return true
}

// matches reports whether the field equals one of the clause values
func (cl Clause) matches(doc []byte) bool {
	res := gjson.GetBytes(doc, cl.Path)
	if !res.Exists() {
		return false
	}
	if res.IsArray() {
		for _, el := range res.Array() {
			if cl.hasValue(el.String()) {
				return true
			}
		}
		return false
	}
	return cl.hasValue(res.String())
}

func (cl Clause) hasValue(v string) bool {
	for _, want := range cl.Values {
		if strings.EqualFold(want, v) {
			return true
		}
	}
	return false
}

// Allowed reports whether record satisfies the condition expression.
// A malformed expression denies.
func Allowed(record any, expr string) bool {
	if strings.TrimSpace(expr) == "" {
		return true
	}
	cond, err := Parse(expr)
	if err != nil {
		return false
	}
	doc, err := json.Marshal(record)
	if err != nil {
		return false
	}
	return cond.Match(doc)
}
