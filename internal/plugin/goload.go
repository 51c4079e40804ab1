package plugin

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const newPluginFuncName = "NewPlugin"

// LoadGoPlugin interprets the Go source file at path and calls its
// NewPlugin(map[string]any) (any, error) entry point, returning the
// constructed value so the caller can register it into the appropriate slot.
// Interpreting (rather than requiring a compiled .so) keeps plugin
// distribution to a single checked-in source file, at the cost of the
// interpreted call being slower than a native one — acceptable since it runs
// once at startup.
func LoadGoPlugin(path string, cfg map[string]any) (any, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load stdlib symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(newPluginFuncName)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s(map[string]any) (any, error): %w", path, newPluginFuncName, err)
	}
	return invokeNewPlugin(fnValue, cfg)
}

func invokeNewPlugin(value reflect.Value, cfg map[string]any) (any, error) {
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, fmt.Errorf("plugin: %s is not a function", newPluginFuncName)
	}
	args := []reflect.Value{reflect.ValueOf(cfg)}
	results := value.Call(args)
	if len(results) != 2 {
		return nil, fmt.Errorf("plugin: %s must return (any, error)", newPluginFuncName)
	}
	if errVal := results[1]; !errVal.IsNil() {
		if e, ok := errVal.Interface().(error); ok && e != nil {
			return nil, e
		}
		return nil, fmt.Errorf("plugin: %s returned a non-error second value", newPluginFuncName)
	}
	instance := results[0].Interface()
	if instance == nil {
		return nil, fmt.Errorf("plugin: %s returned a nil instance", newPluginFuncName)
	}
	return instance, nil
}
