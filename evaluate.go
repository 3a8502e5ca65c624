package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// safePackages is the set of built-ins reachable from inside an evaluated
// schema expression. Anything touching the process, file system, network or
// OS is left out on purpose.
var safePackages = map[string]bool{
	"fmt/fmt":         true,
	"strings/strings": true,
	"strconv/strconv": true,
	"sort/sort":       true,
	"math/math":       true,
	"math/bits/bits":  true, // the interpreter's generic slices source imports it
	"time/time":       true,
	"errors/errors":   true,
	"unicode/unicode": true,
	"regexp/regexp":   true,
}

var safeSymbols = func() interp.Exports {
	exports := make(interp.Exports)
	for path, symbols := range stdlib.Symbols {
		if safePackages[path] {
			exports[path] = symbols
		}
	}
	return exports
}()

// Evaluator runs stored function-expression strings in an isolated
// interpreter. Each evaluation gets a fresh interpreter so expressions cannot
// observe each other's state; only the supplied arguments and safePackages
// are reachable.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// IsExpression reports whether a schema value holds an evaluatable function
// expression rather than literal data.
func IsExpression(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}

	return strings.HasPrefix(strings.TrimSpace(s), "func")
}

// Evaluate evaluates src, which must be a function expression, and calls the
// resulting function with args supplied positionally. Parameters declared
// beyond the supplied arguments receive their zero value; surplus arguments
// are dropped. Every internal failure surfaces as ErrEvaluateSchemaFunction
// carrying the original message, since callers branch on that error kind.
func (e *Evaluator) Evaluate(src string, args ...any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = evalError(fmt.Sprintf("%v", r), src)
		}
	}()

	i := interp.New(interp.Options{})
	if uerr := i.Use(safeSymbols); uerr != nil {
		return nil, evalError(uerr.Error(), src)
	}

	imports, expr := splitImports(src)
	if imports != "" {
		if _, perr := i.Eval(imports); perr != nil {
			return nil, evalError(perr.Error(), src)
		}
	}

	// A bare function literal at the top level is a declaration to the
	// interpreter, which yields no function value. Bind it to a name and
	// evaluate the name to get at the value.
	v, verr := i.Eval("fn := " + expr + "\nfn")
	if verr != nil {
		return nil, evalError(verr.Error(), src)
	}
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, evalError("expression is not a function", src)
	}

	out, cerr := callExpression(v, args)
	if cerr != nil {
		return nil, evalError(cerr.Error(), src)
	}

	return out, nil
}

// splitImports separates the leading import statements a stored expression may
// carry from the function literal that follows them. The two parts are
// evaluated separately since an import is only valid at the top level.
func splitImports(src string) (imports, expr string) {
	lines := strings.Split(src, "\n")
	inBlock := false
	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlock:
			if trimmed == ")" {
				inBlock = false
			}
		case trimmed == "":
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case strings.HasPrefix(trimmed, "import"):
		default:
			return strings.Join(lines[:idx], "\n"), strings.Join(lines[idx:], "\n")
		}
	}

	return src, ""
}

func callExpression(fn reflect.Value, args []any) (any, error) {
	fnType := fn.Type()
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("variadic expressions are not supported")
	}

	in := make([]reflect.Value, fnType.NumIn())
	for idx := range in {
		paramType := fnType.In(idx)
		if idx >= len(args) || args[idx] == nil {
			in[idx] = reflect.Zero(paramType)
			continue
		}

		av := reflect.ValueOf(args[idx])
		if !av.Type().AssignableTo(paramType) {
			return nil, fmt.Errorf("argument %d (%T) not assignable to %s", idx, args[idx], paramType)
		}
		in[idx] = av
	}

	results := fn.Call(in)
	if len(results) == 0 {
		return nil, nil
	}

	// A trailing error return aborts the evaluation.
	last := results[len(results)-1]
	if last.Type() == reflect.TypeOf((*error)(nil)).Elem() {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		results = results[:len(results)-1]
	}

	if len(results) == 0 {
		return nil, nil
	}

	return results[0].Interface(), nil
}

func evalError(message, src string) error {
	return errors.Wrap(ErrEvaluateSchemaFunction, message, j.KV("expression", truncate(src, 256)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}

// resolveValue evaluates v when it is an expression and returns it untouched
// otherwise. args are the context values the expression may declare as
// parameters, typically documents and events.
func (e *Evaluator) resolveValue(v any, args ...any) (any, error) {
	if !IsExpression(v) {
		return v, nil
	}

	return e.Evaluate(v.(string), args...)
}

// resolveString resolves v and asserts the outcome is a string.
func (e *Evaluator) resolveString(v any, args ...any) (string, error) {
	resolved, err := e.resolveValue(v, args...)
	if err != nil {
		return "", err
	}
	if resolved == nil {
		return "", nil
	}

	s, ok := resolved.(string)
	if !ok {
		return "", errors.Wrap(ErrEvaluateSchemaFunction, "expression did not return a string",
			j.KV("got", fmt.Sprintf("%T", resolved)))
	}

	return s, nil
}

// resolveStrings resolves v into a list of strings. Literal values may be a
// single string, []string or []any of strings; expressions may return the
// same shapes.
func (e *Evaluator) resolveStrings(v any, args ...any) ([]string, error) {
	resolved, err := e.resolveValue(v, args...)
	if err != nil {
		return nil, err
	}

	switch val := resolved.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return []string{val}, nil
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Wrap(ErrEvaluateSchemaFunction, "list item is not a string",
					j.KV("got", fmt.Sprintf("%T", item)))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.Wrap(ErrEvaluateSchemaFunction, "expression did not return a string list",
			j.KV("got", fmt.Sprintf("%T", resolved)))
	}
}
