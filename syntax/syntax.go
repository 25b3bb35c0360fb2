// Package syntax generates worker-side script text for the handful of
// bridge operations every Appose worker implementation must support
// (assigning a variable, invoking a named function, importing a module),
// independent of which scripting language the target worker embeds.
package syntax

import (
	"fmt"
	"sync"
)

// Syntax renders the bridge operations into a target language's concrete
// source text. Implementations are registered by name (see Register) so a
// service can be configured with a language string rather than a Go type.
type Syntax interface {
	// Name is the registry key, e.g. "python" or "groovy".
	Name() string

	// GetVar renders an expression whose value is the worker-side
	// variable (or bound input) named varName. Most implementations simply
	// return varName itself, since inputs are bound as variables before
	// the script runs; it exists as a hook for languages that need an
	// explicit lookup.
	GetVar(varName string) string

	// PutVar renders a statement assigning expr's value to varName.
	PutVar(varName, expr string) string

	// Call renders an expression invoking funcName with the given
	// already-rendered argument expressions.
	Call(funcName string, args []string) string

	// Import renders a statement that makes module available.
	Import(module string) string

	// GetAttribute renders an expression reading attr off obj, for a
	// Proxy's GetAttr operation.
	GetAttribute(obj, attr string) string

	// InvokeMethod renders an expression calling method on obj with the
	// given already-bound argument variable names, for a Proxy's Call
	// operation.
	InvokeMethod(obj, method string, argVars []string) string

	// GetAttributes renders an expression listing obj's attribute names,
	// for a Proxy's ListAttrs operation.
	GetAttributes(obj string) string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Syntax{}
)

// Register adds s to the registry under s.Name(), overwriting any previous
// entry with the same name.
func Register(s Syntax) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Name()] = s
}

// Lookup retrieves a registered Syntax by name.
func Lookup(name string) (Syntax, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("syntax: no registered syntax named %q", name)
	}
	return s, nil
}

func init() {
	Register(pythonSyntax{})
	Register(groovySyntax{})
}
