// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package backend

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// rulesLexer tokenizes the routing rules DSL. Multi-character operators
// need their own rules or the default lexer splits them.
var rulesLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "OpEq", Pattern: `==`},
	{Name: "OpNe", Pattern: `!=`},
	{Name: "OpMatch", Pattern: `~`},
	{Name: "OpAnd", Pattern: `&&`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Ident", Pattern: `[a-zA-Z_][\w-]*`},
	{Name: "Semi", Pattern: `;`},
	{Name: "comment", Pattern: `#[^\n]*`},
	{Name: "whitespace", Pattern: `\s+`},
})

// RuleSet is the parsed routing table.
//
// Grammar: ( "use" backend "when" condition ("&&" condition)* ";"
//          | "default" backend ";" )*
type RuleSet struct {
	Pos   lexer.Position `parser:""`
	Rules []*Rule        `parser:"(@@ Semi)*"`
}

// Rule is one routing statement, either a conditional use or the default.
type Rule struct {
	Pos     lexer.Position `parser:""`
	Use     *UseRule       `parser:"  @@"`
	Default *DefaultRule   `parser:"| @@"`
}

// UseRule matches: "use" backend "when" conditions.
type UseRule struct {
	Pos        lexer.Position `parser:""`
	Backend    string         `parser:"'use' @Ident"`
	Conditions []*Condition   `parser:"'when' @@ (OpAnd @@)*"`
}

// DefaultRule matches: "default" backend.
type DefaultRule struct {
	Pos     lexer.Position `parser:""`
	Backend string         `parser:"'default' @Ident"`
}

// Condition compares a spec field against a string literal. The ~ operator
// performs a glob match.
type Condition struct {
	Pos   lexer.Position `parser:""`
	Field []string       `parser:"@Ident (Dot @Ident)*"`
	Op    string         `parser:"@(OpEq | OpNe | OpMatch)"`
	Value string         `parser:"@String"`
}

var rulesParser = participle.MustBuild[RuleSet](
	participle.Lexer(rulesLexer),
	participle.Unquote("String"),
)

// specFields are the simple fields a condition may reference. The
// "annotations" prefix addresses annotation keys instead.
var specFields = map[string]bool{
	"name":    true,
	"image":   true,
	"runtime": true,
	"os":      true,
	"arch":    true,
}

// compiledCondition is a condition with its glob pattern precompiled.
type compiledCondition struct {
	field []string
	op    string
	value string
	glob  glob.Glob
}

type compiledRule struct {
	backend    string
	conditions []compiledCondition
}

// Rules is a compiled routing table ready for evaluation. The default
// backend always matches.
type Rules struct {
	rules       []compiledRule
	defaultName string
}

// ParseRules parses and compiles a routing rules document. Exactly one
// default rule is required and it must be the last statement.
func ParseRules(text string) (*Rules, error) {
	errb := oops.Code(CodeRulesInvalid)

	set, err := rulesParser.ParseString("", text)
	if err != nil {
		return nil, errb.Wrapf(err, "parsing routing rules")
	}

	compiled := &Rules{}
	for i, rule := range set.Rules {
		if rule.Default != nil {
			if compiled.defaultName != "" {
				return nil, errb.Errorf("%s: duplicate default rule", rule.Pos)
			}
			if i != len(set.Rules)-1 {
				return nil, errb.Errorf("%s: default rule must be the last statement", rule.Pos)
			}
			compiled.defaultName = rule.Default.Backend
			continue
		}

		cr := compiledRule{backend: rule.Use.Backend}
		for _, cond := range rule.Use.Conditions {
			cc, err := compileCondition(cond)
			if err != nil {
				return nil, err
			}
			cr.conditions = append(cr.conditions, cc)
		}
		compiled.rules = append(compiled.rules, cr)
	}

	if compiled.defaultName == "" {
		return nil, errb.New("missing default rule")
	}
	return compiled, nil
}

func compileCondition(cond *Condition) (compiledCondition, error) {
	errb := oops.Code(CodeRulesInvalid)
	field := strings.Join(cond.Field, ".")

	switch {
	case len(cond.Field) == 1 && specFields[cond.Field[0]]:
	case len(cond.Field) == 2 && cond.Field[0] == "annotations":
	default:
		return compiledCondition{}, errb.Errorf("%s: unknown field %q", cond.Pos, field)
	}

	cc := compiledCondition{field: cond.Field, op: cond.Op, value: cond.Value}
	if cond.Op == "~" {
		g, err := glob.Compile(cond.Value)
		if err != nil {
			return compiledCondition{}, errb.Wrapf(err, "%s: invalid glob %q", cond.Pos, cond.Value)
		}
		cc.glob = g
	}
	return cc, nil
}

// Backends returns every backend name the rules reference.
func (c *Rules) Backends() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range c.rules {
		if !seen[r.backend] {
			seen[r.backend] = true
			out = append(out, r.backend)
		}
	}
	if !seen[c.defaultName] {
		out = append(out, c.defaultName)
	}
	return out
}

// match returns the backend name for the first matching rule, falling back
// to the default.
func (c *Rules) match(spec ContainerSpec) string {
	for _, rule := range c.rules {
		if rule.matches(spec) {
			return rule.backend
		}
	}
	return c.defaultName
}

func (r compiledRule) matches(spec ContainerSpec) bool {
	for _, cond := range r.conditions {
		if !cond.matches(spec) {
			return false
		}
	}
	return true
}

func (c compiledCondition) matches(spec ContainerSpec) bool {
	actual, ok := fieldValue(spec, c.field)
	if !ok {
		return false
	}
	switch c.op {
	case "==":
		return actual == c.value
	case "!=":
		return actual != c.value
	case "~":
		return c.glob.Match(actual)
	default:
		panic(fmt.Sprintf("unreachable operator %q", c.op))
	}
}

func fieldValue(spec ContainerSpec, field []string) (string, bool) {
	if len(field) == 2 {
		v, ok := spec.Annotations[field[1]]
		return v, ok
	}
	switch field[0] {
	case "name":
		return spec.Name, true
	case "image":
		return spec.Image, true
	case "runtime":
		return spec.Runtime, true
	case "os":
		return spec.OS, true
	case "arch":
		return spec.Arch, true
	}
	return "", false
}
