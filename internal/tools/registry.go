// Package tools holds the function-calling surface offered to the model: a
// closed set of tool names, their JSON-schema declarations and the typed
// handlers that validate arguments before reaching business logic.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/retail-assistant/internal/domain"
	"github.com/tbourn/retail-assistant/internal/llm"
	"github.com/tbourn/retail-assistant/internal/observability"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Report fields by their JSON names, which is what the model sends.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Handler executes one tool call. raw is the model's JSON argument object.
type Handler func(ctx context.Context, raw json.RawMessage) (string, error)

// Typed adapts a handler taking a request struct. Arguments are decoded into T
// and validated with the struct's `validate` tags before fn runs.
func Typed[T any](fn func(ctx context.Context, in T) (string, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (string, error) {
		var in T
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
		}
		if err := validate.Struct(in); err != nil {
			return "", fmt.Errorf("invalid arguments: %s", describe(err))
		}
		return fn(ctx, in)
	}
}

// Definition pairs a tool's declaration with its handler.
type Definition struct {
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Registry maps every Name to its Definition.
type Registry struct {
	defs map[Name]Definition
}

// NewRegistry fails unless defs covers exactly the names in AllNames.
func NewRegistry(defs map[Name]Definition) (*Registry, error) {
	var missing []string
	for _, n := range AllNames {
		d, ok := defs[n]
		if !ok || d.Handler == nil {
			missing = append(missing, string(n))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("tools: no handler for %s", strings.Join(missing, ", "))
	}
	for n := range defs {
		if _, ok := ParseName(string(n)); !ok {
			return nil, fmt.Errorf("tools: unknown tool %q", n)
		}
	}
	return &Registry{defs: defs}, nil
}

// Declarations returns the tool list offered to the model, in AllNames order.
func (r *Registry) Declarations() []llm.Tool {
	out := make([]llm.Tool, 0, len(AllNames))
	for _, n := range AllNames {
		d := r.defs[n]
		out = append(out, llm.Tool{Name: string(n), Description: d.Description, Parameters: d.Parameters})
	}
	return out
}

// Result is the outcome of one tool call. Content is always set and is what
// the model sees; Err keeps the underlying failure for logging.
type Result struct {
	CallID  string
	Name    string
	Content string
	Err     error
}

// ErrUnavailable marks calls to names outside the registry.
var ErrUnavailable = errors.New("tool unavailable")

// Dispatch runs a single call. It never returns an error: unknown names,
// handler errors and panics are turned into result text.
func (r *Registry) Dispatch(ctx context.Context, call domain.ToolCall) (res Result) {
	res = Result{CallID: call.ID, Name: call.Name}

	name, ok := ParseName(call.Name)
	if !ok {
		observability.ToolCalls.WithLabelValues("unknown", "unavailable").Inc()
		res.Err = ErrUnavailable
		res.Content = "tool unavailable: " + call.Name
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
			res.Content = "tool error: " + res.Err.Error()
			observability.ToolCalls.WithLabelValues(string(name), "error").Inc()
		}
	}()

	out, err := r.defs[name].Handler(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		observability.ToolCalls.WithLabelValues(string(name), "error").Inc()
		res.Err = err
		res.Content = "tool error: " + err.Error()
		return res
	}
	observability.ToolCalls.WithLabelValues(string(name), "ok").Inc()
	res.Content = out
	return res
}

// DispatchAll runs calls concurrently and returns their results in call order
// once every call has finished.
func (r *Registry) DispatchAll(ctx context.Context, calls []domain.ToolCall) []Result {
	out := make([]Result, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			out[i] = r.Dispatch(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// describe flattens validator errors into "field: rule" pairs.
func describe(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err.Error()
	}
	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		p := fe.Field() + ": " + fe.Tag()
		if fe.Param() != "" {
			p += "=" + fe.Param()
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}
