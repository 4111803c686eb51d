package tool

import (
	"regexp"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var knownTypes = map[gollem.ParameterType]bool{
	gollem.TypeString:  true,
	gollem.TypeNumber:  true,
	gollem.TypeInteger: true,
	gollem.TypeBoolean: true,
	gollem.TypeArray:   true,
	gollem.TypeObject:  true,
}

// Registry is the validated, immutable table of tools available to the reasoner
type Registry struct {
	tools map[string]gollem.Tool
	specs []gollem.ToolSpec
}

// NewRegistry validates tools and builds the table. It fails on an empty set,
// malformed or duplicate names, and parameters of unknown type.
func NewRegistry(tools ...gollem.Tool) (*Registry, error) {
	if len(tools) == 0 {
		return nil, goerr.New("tool registry must not be empty")
	}

	r := &Registry{tools: make(map[string]gollem.Tool, len(tools))}
	for _, t := range tools {
		spec := t.Spec()
		if !namePattern.MatchString(spec.Name) {
			return nil, goerr.New("invalid tool name", goerr.V(model.ToolNameKey, spec.Name))
		}
		if _, exists := r.tools[spec.Name]; exists {
			return nil, goerr.New("duplicate tool name", goerr.V(model.ToolNameKey, spec.Name))
		}
		for name, p := range spec.Parameters {
			if err := validateParameter(name, p); err != nil {
				return nil, goerr.Wrap(err, "invalid tool parameter", goerr.V(model.ToolNameKey, spec.Name))
			}
		}

		r.tools[spec.Name] = t
		r.specs = append(r.specs, spec)
	}

	sort.Slice(r.specs, func(i, j int) bool { return r.specs[i].Name < r.specs[j].Name })
	return r, nil
}

func validateParameter(name string, p *gollem.Parameter) error {
	if p == nil {
		return goerr.New("parameter is nil", goerr.V("parameter", name))
	}
	if !knownTypes[p.Type] {
		return goerr.New("unknown parameter type", goerr.V("parameter", name), goerr.V("type", p.Type))
	}
	if p.Type == gollem.TypeArray {
		if p.Items == nil {
			return goerr.New("array parameter needs items", goerr.V("parameter", name))
		}
		if err := validateParameter(name+"[]", p.Items); err != nil {
			return err
		}
	}
	for child, cp := range p.Properties {
		if err := validateParameter(name+"."+child, cp); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the tool registered under name
func (r *Registry) Lookup(name string) (gollem.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the specs of all tools sorted by name
func (r *Registry) Specs() []gollem.ToolSpec {
	specs := make([]gollem.ToolSpec, len(r.specs))
	copy(specs, r.specs)
	return specs
}

// Names returns the registered tool names sorted
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}
