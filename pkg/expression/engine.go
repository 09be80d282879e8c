package expression

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine wraps expr-lang/expr with a compiled-program cache. Workflow trigger
// conditions are short boolean expressions evaluated against document
// attributes, so the same expression runs against many documents per tick;
// caching the compiled program keeps that cheap.
type Engine struct {
	programCache map[string]*vm.Program
	mu           sync.RWMutex
}

// NewEngine creates a new expression engine
func NewEngine() *Engine {
	return &Engine{
		programCache: make(map[string]*vm.Program),
	}
}

// Evaluate compiles (if needed) and runs an expression against the given environment
func (e *Engine) Evaluate(expression string, env map[string]interface{}) (interface{}, error) {
	program, err := e.getProgram(expression, env)
	if err != nil {
		return nil, err
	}

	return expr.Run(program, env)
}

// EvaluateBool runs a trigger condition and coerces the result to bool.
// Non-boolean results are an authoring error, not a match.
func (e *Engine) EvaluateBool(expression string, env map[string]interface{}) (bool, error) {
	out, err := e.Evaluate(expression, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, expected bool", expression, out)
	}
	return b, nil
}

// Validate checks that an expression compiles against a representative
// environment without running it.
func (e *Engine) Validate(expression string, env map[string]interface{}) error {
	_, err := e.getProgram(expression, env)
	return err
}

func (e *Engine) getProgram(expression string, env map[string]interface{}) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.programCache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if prog, ok := e.programCache[expression]; ok {
		return prog, nil
	}

	options := []expr.Option{
		expr.Env(env),
		expr.Function("TODAY", func(params ...interface{}) (interface{}, error) {
			return time.Now().Format("2006-01-02"), nil
		}),
		expr.Function("DAYS_SINCE", func(params ...interface{}) (interface{}, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("DAYS_SINCE requires 1 argument")
			}
			t, err := toTime(params[0])
			if err != nil {
				return nil, fmt.Errorf("DAYS_SINCE argument must be a date: %w", err)
			}
			return int(time.Since(t).Hours() / 24), nil
		}),
		expr.Function("UPPER", func(params ...interface{}) (interface{}, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("UPPER requires 1 argument")
			}
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("UPPER argument must be string")
			}
			return strings.ToUpper(s), nil
		}),
		expr.Function("LOWER", func(params ...interface{}) (interface{}, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("LOWER requires 1 argument")
			}
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("LOWER argument must be string")
			}
			return strings.ToLower(s), nil
		}),
		expr.Function("HAS_TAG", func(params ...interface{}) (interface{}, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("HAS_TAG requires 2 arguments (tags, tag)")
			}
			tags, ok := params[0].([]string)
			if !ok {
				return nil, fmt.Errorf("HAS_TAG first argument must be a string list")
			}
			want, ok := params[1].(string)
			if !ok {
				return nil, fmt.Errorf("HAS_TAG second argument must be string")
			}
			for _, tag := range tags {
				if strings.EqualFold(tag, want) {
					return true, nil
				}
			}
			return false, nil
		}),
	}

	program, err := expr.Compile(expression, options...)
	if err != nil {
		return nil, err
	}

	e.programCache[expression] = program
	return program, nil
}

func toTime(v interface{}) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		if t, err := time.Parse("2006-01-02", val); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02 15:04:05", val)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to time", v)
}
