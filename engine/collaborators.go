package engine

import (
	"context"
	"encoding/json"
	"sync"
)

// VariableStore resolves the variables visible from a scope.
type VariableStore interface {
	// Document returns every variable of the scope as a JSON object.
	Document(ctx context.Context, scopeKey int64) ([]byte, error)
	// DocumentFor returns only the named variables that exist.
	DocumentFor(ctx context.Context, scopeKey int64, names []string) ([]byte, error)
}

// CatchEvent is the handler resolved for a thrown error.
type CatchEvent struct {
	ElementID          string
	ElementInstanceKey int64
	// EventScopeKey is the scope that must accept the event.
	EventScopeKey int64
}

// CatchEventResolver answers process-model questions for ThrowError.
type CatchEventResolver interface {
	FindCatchEvent(ctx context.Context, errorCode string, elementInstanceKey int64) (CatchEvent, bool, error)
	ElementActive(ctx context.Context, elementInstanceKey int64) (bool, error)
	AcceptsEvents(ctx context.Context, eventScopeKey int64) (bool, error)
}

var emptyDocument = []byte("{}")

// MemoryVariables is a VariableStore backed by maps, keyed by scope.
type MemoryVariables struct {
	mu     sync.RWMutex
	scopes map[int64]map[string]json.RawMessage
}

func NewMemoryVariables() *MemoryVariables {
	return &MemoryVariables{scopes: make(map[int64]map[string]json.RawMessage)}
}

// Set stores a variable as its JSON encoding.
func (v *MemoryVariables) Set(scopeKey int64, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	scope, ok := v.scopes[scopeKey]
	if !ok {
		scope = make(map[string]json.RawMessage)
		v.scopes[scopeKey] = scope
	}
	scope[name] = raw
	return nil
}

func (v *MemoryVariables) Document(ctx context.Context, scopeKey int64) ([]byte, error) {
	return v.DocumentFor(ctx, scopeKey, nil)
}

func (v *MemoryVariables) DocumentFor(_ context.Context, scopeKey int64, names []string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	scope := v.scopes[scopeKey]
	if len(scope) == 0 {
		return emptyDocument, nil
	}
	doc := scope
	if len(names) > 0 {
		doc = make(map[string]json.RawMessage, len(names))
		for _, name := range names {
			if raw, ok := scope[name]; ok {
				doc[name] = raw
			}
		}
	}
	// encoding/json sorts map keys, so equal scopes give equal bytes
	return json.Marshal(doc)
}

// CatchEventTable is a static CatchEventResolver. Errors are caught when a
// handler is registered for the code, or for "" as a catch-all.
type CatchEventTable struct {
	mu        sync.RWMutex
	handlers  map[string]CatchEvent
	inactive  map[int64]bool
	rejecting map[int64]bool
}

func NewCatchEventTable() *CatchEventTable {
	return &CatchEventTable{
		handlers:  make(map[string]CatchEvent),
		inactive:  make(map[int64]bool),
		rejecting: make(map[int64]bool),
	}
}

func (c *CatchEventTable) Catch(errorCode string, event CatchEvent) {
	c.mu.Lock()
	c.handlers[errorCode] = event
	c.mu.Unlock()
}

// Deactivate marks the element instance as no longer active.
func (c *CatchEventTable) Deactivate(elementInstanceKey int64) {
	c.mu.Lock()
	c.inactive[elementInstanceKey] = true
	c.mu.Unlock()
}

// RejectEvents marks the scope as not accepting events.
func (c *CatchEventTable) RejectEvents(eventScopeKey int64) {
	c.mu.Lock()
	c.rejecting[eventScopeKey] = true
	c.mu.Unlock()
}

func (c *CatchEventTable) FindCatchEvent(_ context.Context, errorCode string, _ int64) (CatchEvent, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ev, ok := c.handlers[errorCode]; ok {
		return ev, true, nil
	}
	ev, ok := c.handlers[""]
	return ev, ok, nil
}

func (c *CatchEventTable) ElementActive(_ context.Context, elementInstanceKey int64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.inactive[elementInstanceKey], nil
}

func (c *CatchEventTable) AcceptsEvents(_ context.Context, eventScopeKey int64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.rejecting[eventScopeKey], nil
}

// noCatchEvents resolves nothing, every thrown error becomes an incident.
type noCatchEvents struct{}

func (noCatchEvents) FindCatchEvent(context.Context, string, int64) (CatchEvent, bool, error) {
	return CatchEvent{}, false, nil
}
func (noCatchEvents) ElementActive(context.Context, int64) (bool, error) { return true, nil }
func (noCatchEvents) AcceptsEvents(context.Context, int64) (bool, error) { return true, nil }
