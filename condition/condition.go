/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package condition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"

	"github.com/rulego/fpcql/types"
)

// Truth is a three-valued logic value
type Truth int8

const (
	// Unknown is the result of NULL operands or evaluation errors
	Unknown Truth = iota
	False
	True
)

func (t Truth) String() string {
	switch t {
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	default:
		return "UNKNOWN"
	}
}

// TruthOf maps an evaluation result onto three-valued logic.
// nil and values that are not convertible to bool are UNKNOWN.
func TruthOf(v interface{}) Truth {
	if v == nil {
		return Unknown
	}
	if b, ok := v.(bool); ok {
		if b {
			return True
		}
		return False
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return Unknown
	}
	if b {
		return True
	}
	return False
}

// Window is the context an expression can aggregate over, usually a buffer view
type Window interface {
	Length() int
	// Scan visits the samples oldest to newest
	Scan(visit func(*types.Sample))
}

// Expression is a bound expression evaluated against one record and an optional window
type Expression interface {
	Evaluate(s *types.Sample, w Window) (interface{}, error)
	// Attributes lists the device attributes the expression depends on
	Attributes() []string
	String() string
}

// Condition is a boolean expression with three-valued semantics
type Condition interface {
	Test(s *types.Sample, w Window) Truth
	Attributes() []string
	String() string
}

var (
	_ Expression = (*ExprExpression)(nil)
	_ Condition  = (*ExprCondition)(nil)
)

// ExprExpression is an expression compiled with expr-lang
type ExprExpression struct {
	source  string
	program *vm.Program
	attrs   []string
}

// Compile compiles an expression. SQL style keywords (AND, OR, NOT, TRUE, FALSE, NULL, <>)
// are accepted next to the expr-lang syntax.
func Compile(source string) (*ExprExpression, error) {
	processed := preprocess(source)
	if strings.TrimSpace(processed) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	tree, err := parser.Parse(processed)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", source, err)
	}
	program, err := expr.Compile(processed, compileOptions()...)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", source, err)
	}
	return &ExprExpression{
		source:  source,
		program: program,
		attrs:   collectAttributes(&tree.Node),
	}, nil
}

func compileOptions() []expr.Option {
	return []expr.Option{
		expr.Function("like_match", func(params ...any) (any, error) {
			if len(params) != 2 {
				return false, fmt.Errorf("like_match function requires 2 parameters")
			}
			text, ok1 := params[0].(string)
			pattern, ok2 := params[1].(string)
			if !ok1 || !ok2 {
				return nil, nil
			}
			return matchLike(text, pattern), nil
		}),
		expr.AllowUndefinedVariables(),
	}
}

// Evaluate runs the program against the sample; aggregate functions read the window
func (e *ExprExpression) Evaluate(s *types.Sample, w Window) (interface{}, error) {
	var env map[string]interface{}
	if s != nil {
		env = s.Env()
	} else {
		env = make(map[string]interface{}, len(aggregateNames))
	}
	bindAggregates(env, w)
	return expr.Run(e.program, env)
}

func (e *ExprExpression) Attributes() []string { return e.attrs }

func (e *ExprExpression) String() string { return e.source }

// ExprCondition is a boolean ExprExpression
type ExprCondition struct {
	*ExprExpression
}

// NewExprCondition compiles a boolean condition
func NewExprCondition(source string) (*ExprCondition, error) {
	e, err := Compile(source)
	if err != nil {
		return nil, err
	}
	return &ExprCondition{ExprExpression: e}, nil
}

// Test evaluates the condition; errors are UNKNOWN
func (c *ExprCondition) Test(s *types.Sample, w Window) Truth {
	v, err := c.Evaluate(s, w)
	if err != nil {
		return Unknown
	}
	return TruthOf(v)
}

// staticCondition always yields the same truth value and depends on nothing
type staticCondition Truth

// Always returns a condition without attributes that always yields t
func Always(t Truth) Condition {
	return staticCondition(t)
}

func (c staticCondition) Test(*types.Sample, Window) Truth { return Truth(c) }
func (c staticCondition) Attributes() []string             { return nil }
func (c staticCondition) String() string                   { return Truth(c).String() }

// IsStatic reports whether a condition can be decided without any attribute
func IsStatic(c Condition) bool {
	return c == nil || len(c.Attributes()) == 0
}

// Attributes merges and sorts the attributes of several expressions
func Attributes[T interface{ Attributes() []string }](items ...T) []string {
	seen := make(map[string]struct{})
	for _, it := range items {
		for _, a := range it.Attributes() {
			seen[a] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// attributeCollector walks the AST collecting identifiers that are not function names
type attributeCollector struct {
	idents  map[string]struct{}
	callees map[string]struct{}
}

func (c *attributeCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents[n.Value] = struct{}{}
	case *ast.CallNode:
		ident, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			return
		}
		c.callees[ident.Value] = struct{}{}
		if _, agg := aggregateNames[ident.Value]; agg && len(n.Arguments) > 0 {
			if field, ok := n.Arguments[0].(*ast.StringNode); ok {
				c.idents[field.Value] = struct{}{}
			}
		}
	}
}

func collectAttributes(root *ast.Node) []string {
	c := &attributeCollector{
		idents:  make(map[string]struct{}),
		callees: make(map[string]struct{}),
	}
	ast.Walk(root, c)
	attrs := make([]string, 0, len(c.idents))
	for name := range c.idents {
		if _, fn := c.callees[name]; fn {
			continue
		}
		if name == types.TimestampField {
			continue
		}
		attrs = append(attrs, name)
	}
	sort.Strings(attrs)
	return attrs
}
