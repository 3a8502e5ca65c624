package engine_test

import (
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/openbp/engine"
)

func TestEvaluate(t *testing.T) {
	ev := engine.NewEvaluator()

	t.Run("plain function", func(t *testing.T) {
		got, err := ev.Evaluate(`func() string { return "hello" }`)
		jtest.RequireNil(t, err)
		require.Equal(t, "hello", got)
	})

	t.Run("context arguments", func(t *testing.T) {
		docs := []map[string]any{{"id": "d1"}}

		got, err := ev.Evaluate(
			`func(docs []map[string]interface{}) string { return docs[0]["id"].(string) }`,
			docs,
		)
		jtest.RequireNil(t, err)
		require.Equal(t, "d1", got)
	})

	t.Run("missing arguments zero filled", func(t *testing.T) {
		got, err := ev.Evaluate(`func(docs []map[string]interface{}) int { return len(docs) }`)
		jtest.RequireNil(t, err)
		require.Equal(t, 0, got)
	})

	t.Run("trailing nil error dropped", func(t *testing.T) {
		got, err := ev.Evaluate(`func() (string, error) { return "ok", nil }`)
		jtest.RequireNil(t, err)
		require.Equal(t, "ok", got)
	})

	t.Run("allowed package", func(t *testing.T) {
		got, err := ev.Evaluate(`import "strings"
func(docs []map[string]interface{}) string { return strings.ToUpper("abc") }`)
		jtest.RequireNil(t, err)
		require.Equal(t, "ABC", got)
	})

	t.Run("import block", func(t *testing.T) {
		got, err := ev.Evaluate(`import (
	"fmt"
	"strings"
)
func() string { return fmt.Sprint(strings.Repeat("ab", 2)) }`)
		jtest.RequireNil(t, err)
		require.Equal(t, "abab", got)
	})

	t.Run("blocked package", func(t *testing.T) {
		_, err := ev.Evaluate(`import "os"
func() string { return os.Getenv("HOME") }`)
		jtest.Require(t, engine.ErrEvaluateSchemaFunction, err)
	})

	t.Run("not a function", func(t *testing.T) {
		_, err := ev.Evaluate(`"just a string"`)
		jtest.Require(t, engine.ErrEvaluateSchemaFunction, err)
	})

	t.Run("compile error", func(t *testing.T) {
		_, err := ev.Evaluate(`func() string { return }`)
		jtest.Require(t, engine.ErrEvaluateSchemaFunction, err)
	})

	t.Run("panic recovered", func(t *testing.T) {
		_, err := ev.Evaluate(`func() string { panic("boom") }`)
		jtest.Require(t, engine.ErrEvaluateSchemaFunction, err)
	})
}

func TestIsExpression(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{name: "function string", v: `func() string { return "x" }`, want: true},
		{name: "leading whitespace", v: "  func() int { return 1 }", want: true},
		{name: "literal string", v: "plain value", want: false},
		{name: "not a string", v: 42, want: false},
		{name: "nil", v: nil, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, engine.IsExpression(tc.v))
		})
	}
}
