package check

import (
	"context"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// DefinitionReader is the store read the dispatcher depends on.
type DefinitionReader interface {
	GetDefinition(ctx context.Context, id string) (*types.CheckDefinition, error)
}

// Dispatcher resolves a definition id to its compiled check.
type Dispatcher struct {
	store DefinitionReader
}

// NewDispatcher creates a Dispatcher reading from store.
func NewDispatcher(store DefinitionReader) *Dispatcher {
	return &Dispatcher{store: store}
}

// Resolve reads the current definition and compiles it with the variant its
// declared type maps to. Store errors are returned with a nil definition;
// an invalid definition is returned alongside its *Invalid error.
func (d *Dispatcher) Resolve(ctx context.Context, id string) (*types.CheckDefinition, *Compiled, error) {
	def, err := d.store.GetDefinition(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	compiled, err := Compile(*def)
	if err != nil {
		return def, nil, err
	}
	return def, compiled, nil
}
