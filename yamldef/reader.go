// Package yamldef reads component definitions from YAML documents.
//
// Recipes and types cannot be expressed in YAML, so documents refer to them by
// name and a Catalog maps the names to Go values:
//
//	components:
//	  - id: repo
//	    recipe: sqlRepo
//	    type: Repository
//	    aliases: [repository]
//	    args:
//	      - value: "postgres://localhost/app"
//	    properties:
//	      cache: { ref: cache }
//	      store: { type: Store, qualifier: primaryStore }
package yamldef

import (
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/centraunit/wiring"
	"gopkg.in/yaml.v3"
)

// Catalog maps the names used in documents to recipes and types.
type Catalog struct {
	recipes map[string]wiring.Recipe
	types   map[string]reflect.Type
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		recipes: make(map[string]wiring.Recipe),
		types:   make(map[string]reflect.Type),
	}
}

// AddRecipe names a recipe.
func (c *Catalog) AddRecipe(name string, r wiring.Recipe) *Catalog {
	c.recipes[name] = r
	return c
}

// AddType names a type.
func (c *Catalog) AddType(name string, t reflect.Type) *Catalog {
	c.types[name] = t
	return c
}

// Error reports a problem at a position of a document.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("yamldef: line %d: %s", e.Line, e.Msg)
}

func errorAt(n *yaml.Node, format string, args ...any) error {
	return &Error{Line: n.Line, Msg: fmt.Sprintf(format, args...)}
}

type component struct {
	ID               string      `yaml:"id"`
	Recipe           string      `yaml:"recipe"`
	Type             string      `yaml:"type"`
	Scope            string      `yaml:"scope"`
	Primary          bool        `yaml:"primary"`
	Lazy             bool        `yaml:"lazy"`
	DependsOn        []string    `yaml:"depends_on"`
	Aliases          []string    `yaml:"aliases"`
	SkipInit         bool        `yaml:"skip_init"`
	SkipDestroy      bool        `yaml:"skip_destroy"`
	NoEarlyReference bool        `yaml:"no_early_reference"`
	Args             []yaml.Node `yaml:"args"`
	Properties       yaml.Node   `yaml:"properties"`
}

var componentKeys = map[string]bool{
	"id": true, "recipe": true, "type": true, "scope": true, "primary": true,
	"lazy": true, "depends_on": true, "aliases": true, "skip_init": true,
	"skip_destroy": true, "no_early_reference": true, "args": true, "properties": true,
}

// Load reads the definitions in the file at path.
func Load(path string, catalog *Catalog) ([]*wiring.Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("yamldef: %w", err)
	}
	defer f.Close()

	defs, err := Read(f, catalog)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Read parses one document.
func Read(r io.Reader, catalog *Catalog) ([]*wiring.Definition, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("yamldef: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errorAt(doc, "document must be a mapping with a components key")
	}
	var list *yaml.Node
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "components" {
			list = doc.Content[i+1]
		} else {
			return nil, errorAt(doc.Content[i], "unknown key %q", doc.Content[i].Value)
		}
	}
	if list == nil || list.Tag == "!!null" {
		return nil, nil
	}
	if list.Kind != yaml.SequenceNode {
		return nil, errorAt(list, "components must be a sequence")
	}

	defs := make([]*wiring.Definition, 0, len(list.Content))
	for _, n := range list.Content {
		def, err := readComponent(n, catalog)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func readComponent(n *yaml.Node, catalog *Catalog) (*wiring.Definition, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "component must be a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if key := n.Content[i]; !componentKeys[key.Value] {
			return nil, errorAt(key, "unknown component key %q", key.Value)
		}
	}

	var c component
	if err := n.Decode(&c); err != nil {
		return nil, errorAt(n, "%v", err)
	}
	if c.ID == "" {
		return nil, errorAt(n, "component without id")
	}

	recipe, ok := catalog.recipes[c.Recipe]
	if !ok {
		return nil, errorAt(n, "component %q: unknown recipe %q", c.ID, c.Recipe)
	}
	def := &wiring.Definition{
		ID:               c.ID,
		Recipe:           recipe,
		Scope:            wiring.Scope(c.Scope),
		Primary:          c.Primary,
		Lazy:             c.Lazy,
		DependsOn:        c.DependsOn,
		Aliases:          c.Aliases,
		SkipInit:         c.SkipInit,
		SkipDestroy:      c.SkipDestroy,
		NoEarlyReference: c.NoEarlyReference,
	}
	if c.Type != "" {
		t, ok := catalog.types[c.Type]
		if !ok {
			return nil, errorAt(n, "component %q: unknown type %q", c.ID, c.Type)
		}
		def.Type = t
	}

	for i := range c.Args {
		spec, err := readValue(&c.Args[i], catalog)
		if err != nil {
			return nil, err
		}
		def.Args = append(def.Args, spec)
	}

	props := &c.Properties
	switch props.Kind {
	case 0:
	case yaml.MappingNode:
		// mapping order is the injection order
		for i := 0; i+1 < len(props.Content); i += 2 {
			spec, err := readValue(props.Content[i+1], catalog)
			if err != nil {
				return nil, err
			}
			def.Properties = append(def.Properties, wiring.Property{Name: props.Content[i].Value, Value: spec})
		}
	default:
		return nil, errorAt(props, "component %q: properties must be a mapping", c.ID)
	}
	return def, nil
}

func readValue(n *yaml.Node, catalog *Catalog) (wiring.ValueSpec, error) {
	if n.Kind != yaml.MappingNode {
		return wiring.ValueSpec{}, errorAt(n, "value must be a mapping with one of value, ref, type, list or map")
	}

	var (
		spec      wiring.ValueSpec
		kinds     int
		optional  bool
		qualifier string
	)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "value":
			var v any
			if err := val.Decode(&v); err != nil {
				return spec, errorAt(val, "%v", err)
			}
			spec = wiring.Value(v)
			kinds++
		case "ref":
			spec = wiring.Ref(val.Value)
			kinds++
		case "type":
			t, ok := catalog.types[val.Value]
			if !ok {
				return spec, errorAt(val, "unknown type %q", val.Value)
			}
			spec = wiring.RefType(t)
			kinds++
		case "list":
			if val.Kind != yaml.SequenceNode {
				return spec, errorAt(val, "list must be a sequence")
			}
			items := make([]wiring.ValueSpec, 0, len(val.Content))
			for _, item := range val.Content {
				s, err := readValue(item, catalog)
				if err != nil {
					return spec, err
				}
				items = append(items, s)
			}
			spec = wiring.List(items...)
			kinds++
		case "map":
			if val.Kind != yaml.MappingNode {
				return spec, errorAt(val, "map must be a mapping")
			}
			entries := make(map[string]wiring.ValueSpec, len(val.Content)/2)
			for j := 0; j+1 < len(val.Content); j += 2 {
				s, err := readValue(val.Content[j+1], catalog)
				if err != nil {
					return spec, err
				}
				entries[val.Content[j].Value] = s
			}
			spec = wiring.Map(entries)
			kinds++
		case "optional":
			if err := val.Decode(&optional); err != nil {
				return spec, errorAt(val, "optional: %v", err)
			}
		case "qualifier":
			qualifier = val.Value
		default:
			return spec, errorAt(key, "unknown value key %q", key.Value)
		}
	}
	if kinds != 1 {
		return spec, errorAt(n, "value needs exactly one of value, ref, type, list or map")
	}
	if optional {
		spec = spec.Optional()
	}
	if qualifier != "" {
		spec = spec.Qualified(qualifier)
	}
	return spec, nil
}

// Register adds defs to rt in order.
func Register(rt *wiring.Runtime, defs []*wiring.Definition) error {
	for _, def := range defs {
		if err := rt.Register(def); err != nil {
			return err
		}
	}
	return nil
}
