package expr

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"

	"github.com/roach88/vigil/internal/engine"
)

// Scope names bound while an expression is evaluated.
const (
	ScopeState = "state"
	ScopePrev  = "prev"
	ScopeCur   = "cur"
)

// Compiler turns CUE expressions into engine predicates.
//
// Thread-safety: evaluation is serialized through an internal mutex, so the
// returned functions are safe to call from concurrent sessions.
type Compiler struct {
	mu  sync.Mutex
	ctx *cue.Context
}

// NewCompiler creates a compiler with its own CUE context.
func NewCompiler() *Compiler {
	return &Compiler{ctx: cuecontext.New()}
}

// Program is a compiled expression and the names it may reference.
type Program struct {
	Source string
	Scope  []string
	value  cue.Value
	owner  *Compiler
}

// Compile checks that src is a single CUE expression and compiles it with
// the given scope names bound to open values. If boolean is set, the
// expression must evaluate to a bool.
func (c *Compiler) Compile(src string, boolean bool, scope ...string) (*Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, &CompileError{Expr: src, Message: "expression is empty"}
	}

	// Rejects anything that is not exactly one expression, such as extra
	// field declarations smuggled in after a newline.
	if _, err := parser.ParseExpr("expr", src); err != nil {
		return nil, formatCUEError(src, err)
	}

	var b strings.Builder
	for _, name := range scope {
		fmt.Fprintf(&b, "%s: _\n", name)
	}
	if boolean {
		fmt.Fprintf(&b, "result: bool & (%s)\n", src)
	} else {
		fmt.Fprintf(&b, "result: %s\n", src)
	}

	c.mu.Lock()
	v := c.ctx.CompileString(b.String(), cue.Filename("expr.cue"))
	c.mu.Unlock()
	if err := v.Err(); err != nil {
		return nil, formatCUEError(src, err)
	}

	return &Program{Source: src, Scope: scope, value: v, owner: c}, nil
}

// Eval binds each scope name, in order, to the matching value and returns
// the concrete result.
func (p *Program) Eval(values ...any) (cue.Value, error) {
	if len(values) != len(p.Scope) {
		return cue.Value{}, fmt.Errorf("expression %q: expected %d bindings, got %d", p.Source, len(p.Scope), len(values))
	}

	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()

	v := p.value
	for i, name := range p.Scope {
		v = v.FillPath(cue.ParsePath(name), values[i])
	}

	result := v.LookupPath(cue.ParsePath("result"))
	if err := result.Err(); err != nil {
		return cue.Value{}, formatCUEError(p.Source, err)
	}
	if !result.IsConcrete() {
		return cue.Value{}, &CompileError{Expr: p.Source, Message: "result is not concrete"}
	}
	return result, nil
}

// Predicate compiles a boolean expression over `state`.
//
// Example: `state.val > 40`
func Predicate[S any](c *Compiler, src string) (engine.Predicate[S], error) {
	prog, err := c.Compile(src, true, ScopeState)
	if err != nil {
		return nil, err
	}
	return func(s S) (bool, error) {
		v, err := prog.Eval(s)
		if err != nil {
			return false, err
		}
		return v.Bool()
	}, nil
}

// Transition compiles a boolean expression over `prev` and `cur`.
//
// Example: `mod(prev.val, 2) == 0 && mod(cur.val, 2) == 1`
func Transition[S any](c *Compiler, src string) (engine.Transition[S], error) {
	prog, err := c.Compile(src, true, ScopePrev, ScopeCur)
	if err != nil {
		return nil, err
	}
	return func(prev, cur S) (bool, error) {
		v, err := prog.Eval(prev, cur)
		if err != nil {
			return false, err
		}
		return v.Bool()
	}, nil
}

// Value compiles an expression over `prev` and `cur` that derives a
// reaction argument. Integers decode as int64, other numbers as float64.
//
// Example: `{from: prev.val, to: cur.val}`
func Value[S any](c *Compiler, src string) (engine.ArgFunc[S, any], error) {
	prog, err := c.Compile(src, false, ScopePrev, ScopeCur)
	if err != nil {
		return nil, err
	}
	return func(prev, cur S) (any, error) {
		v, err := prog.Eval(prev, cur)
		if err != nil {
			return nil, err
		}
		return decode(v)
	}, nil
}

func decode(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	default:
		var out any
		if err := v.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// CompileError reports an invalid or failing expression.
type CompileError struct {
	Expr    string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%q:%d: %s", e.Expr, e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%q: %s", e.Expr, e.Message)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(src string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Expr: src, Message: err.Error()}
	}

	first := errs[0]
	ce := &CompileError{Expr: src, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
