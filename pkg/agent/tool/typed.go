package tool

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

// Input is a tool argument type that can check itself after decoding
type Input interface {
	Validate() error
}

// Handler executes a tool with decoded, validated input
type Handler[In Input, Out any] func(ctx context.Context, in In) (Out, error)

// Typed adapts a typed handler to gollem.Tool. Arguments are decoded into In through
// their JSON form and the result is encoded back the same way.
type Typed[In Input, Out any] struct {
	spec    gollem.ToolSpec
	handler Handler[In, Out]
}

var _ gollem.Tool = (*Typed[Input, any])(nil)

// NewTyped creates a typed tool
func NewTyped[In Input, Out any](spec gollem.ToolSpec, handler Handler[In, Out]) *Typed[In, Out] {
	return &Typed[In, Out]{spec: spec, handler: handler}
}

// Spec returns the tool's specification
func (t *Typed[In, Out]) Spec() gollem.ToolSpec {
	return t.spec
}

// Run decodes args, validates them and calls the handler.
// Decoding and validation failures wrap model.ErrValidation.
func (t *Typed[In, Out]) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	in, err := Decode[In](args)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid tool arguments", goerr.V(model.ToolNameKey, t.spec.Name))
	}

	out, err := t.handler(ctx, in)
	if err != nil {
		return nil, err
	}

	return Encode(out)
}

// Decode converts loosely typed arguments into In and validates it
func Decode[In Input](args map[string]any) (In, error) {
	var in In
	if args == nil {
		args = map[string]any{}
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return in, goerr.Wrap(model.ErrValidation, "arguments are not serializable", goerr.V("cause", err.Error()))
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, goerr.Wrap(model.ErrValidation, "arguments do not match the tool input", goerr.V("cause", err.Error()))
	}
	if err := in.Validate(); err != nil {
		return in, goerr.Wrap(model.ErrValidation, err.Error())
	}
	return in, nil
}

// Encode converts a typed output into the JSON object form returned to the reasoner
func Encode(out any) (map[string]any, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode tool output")
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, goerr.Wrap(err, "tool output must be a JSON object")
	}
	return result, nil
}
