package plugin

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Declaration describes a config-declared plugin: which slot and name it
// registers under, the Go source file that constructs it, and any
// plugin-private configuration passed to that constructor. This is the
// `plugins.declarations` entry of ao.yaml.
type Declaration struct {
	Slot   Slot           `json:"slot" yaml:"slot"`
	Name   string         `json:"name" yaml:"name"`
	Source string         `json:"source" yaml:"source"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Normalized trims string fields.
func (d Declaration) Normalized() Declaration {
	clone := d
	clone.Slot = Slot(strings.TrimSpace(string(d.Slot)))
	clone.Name = strings.TrimSpace(d.Name)
	clone.Source = strings.TrimSpace(d.Source)
	return clone
}

// Validate checks that a declaration is well-formed.
func (d Declaration) Validate() error {
	n := d.Normalized()
	if n.Slot == "" {
		return fmt.Errorf("plugin: declaration slot is required")
	}
	switch n.Slot {
	case SlotRuntime, SlotAgent, SlotWorkspace, SlotSCM, SlotTracker, SlotNotifier:
	default:
		return fmt.Errorf("plugin: unknown slot %q", n.Slot)
	}
	if n.Name == "" {
		return fmt.Errorf("plugin: declaration name is required")
	}
	if n.Source == "" {
		return fmt.Errorf("plugin: declaration %s/%s: source is required", n.Slot, n.Name)
	}
	return nil
}

// ParseDeclarationYAML decodes and validates a single declaration payload.
func ParseDeclarationYAML(data []byte) (Declaration, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Declaration{}, fmt.Errorf("plugin: declaration payload is empty")
	}
	var decl Declaration
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return Declaration{}, fmt.Errorf("plugin: decode declaration: %w", err)
	}
	decl = decl.Normalized()
	if err := decl.Validate(); err != nil {
		return Declaration{}, err
	}
	return decl, nil
}
