package tools

import (
	"fmt"

	"github.com/jonwraymond/toolgate/catalog"
)

// Register adds the built-in tools to cat. upstream_get is added only when
// up is non-nil.
func Register(cat *catalog.Catalog, up *UpstreamConfig) error {
	defs := []catalog.Definition{Echo()}
	if up != nil {
		def, err := UpstreamGet(*up)
		if err != nil {
			return err
		}
		defs = append(defs, def)
	}
	for _, def := range defs {
		if err := cat.Register(def); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return nil
}
