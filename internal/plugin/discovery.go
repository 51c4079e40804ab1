package plugin

import "fmt"

// RegisterDeclared loads and registers every config-declared plugin. Each
// declaration's Go source is interpreted once at startup; the resulting
// instance is registered under its declared (slot, name) and must satisfy
// the corresponding slot interface or registration fails loudly rather than
// surfacing a confusing error the first time the core dispatches to it.
func RegisterDeclared(reg *Registry, declarations []Declaration) error {
	for _, raw := range declarations {
		decl := raw.Normalized()
		if err := decl.Validate(); err != nil {
			return err
		}
		instance, err := LoadGoPlugin(decl.Source, decl.Config)
		if err != nil {
			return fmt.Errorf("plugin: load %s/%s from %s: %w", decl.Slot, decl.Name, decl.Source, err)
		}
		if err := assertImplementsSlot(decl.Slot, instance); err != nil {
			return fmt.Errorf("plugin: %s/%s: %w", decl.Slot, decl.Name, err)
		}
		if err := reg.Register(decl.Slot, decl.Name, instance); err != nil {
			return err
		}
	}
	return nil
}

func assertImplementsSlot(slot Slot, instance any) error {
	var ok bool
	switch slot {
	case SlotRuntime:
		_, ok = instance.(Runtime)
	case SlotAgent:
		_, ok = instance.(Agent)
	case SlotWorkspace:
		_, ok = instance.(Workspace)
	case SlotSCM:
		_, ok = instance.(SCM)
	case SlotTracker:
		_, ok = instance.(Tracker)
	case SlotNotifier:
		_, ok = instance.(Notifier)
	default:
		return fmt.Errorf("unknown slot %q", slot)
	}
	if !ok {
		return fmt.Errorf("instance does not implement the %s slot interface", slot)
	}
	return nil
}
