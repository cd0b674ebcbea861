package archive

import "fmt"

// Layer is one named set of variable bindings inside a Context.
type Layer struct {
	Name string
	Vars map[string]string
}

// Context is an ordered stack of variable layers. Later layers win on key
// collision, which makes the precedence order explicit instead of relying
// on map-merge convention. A Context is immutable once built.
type Context struct {
	layers []Layer
}

// NewContext validates and assembles layers in precedence order, lowest
// first. Layer names must be non-empty and unique.
func NewContext(layers ...Layer) (*Context, error) {
	seen := make(map[string]struct{}, len(layers))
	for _, layer := range layers {
		if layer.Name == "" {
			return nil, fmt.Errorf("variable layer without a name")
		}
		if _, dup := seen[layer.Name]; dup {
			return nil, fmt.Errorf("duplicate variable layer %q", layer.Name)
		}
		seen[layer.Name] = struct{}{}
	}
	return &Context{layers: layers}, nil
}

// With returns a new Context with extra layers stacked on top.
func (c *Context) With(layers ...Layer) (*Context, error) {
	combined := make([]Layer, 0, len(c.layers)+len(layers))
	combined = append(combined, c.layers...)
	combined = append(combined, layers...)
	return NewContext(combined...)
}

// Lookup walks layers from highest precedence to lowest.
func (c *Context) Lookup(name string) (string, bool) {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if value, ok := c.layers[i].Vars[name]; ok {
			return value, true
		}
	}
	return "", false
}
