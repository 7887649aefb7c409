package serialization

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/enginemux/enginemux-go/contracts"
)

// UpdateTypeRegistry maps "@type" discriminators to Go update types so the
// receive path can decode unsolicited documents into schema-typed values.
type UpdateTypeRegistry struct {
	types map[string]reflect.Type
	mu    sync.RWMutex
}

// NewUpdateTypeRegistry creates an empty registry.
func NewUpdateTypeRegistry() *UpdateTypeRegistry {
	return &UpdateTypeRegistry{
		types: make(map[string]reflect.Type),
	}
}

// Register registers an update type under its own discriminator.
// The prototype's value is not retained, only its type.
func (r *UpdateTypeRegistry) Register(prototype contracts.Update) error {
	if prototype == nil {
		return fmt.Errorf("update prototype cannot be nil")
	}

	typeName := prototype.UpdateType()
	if typeName == "" {
		return fmt.Errorf("update type name cannot be empty")
	}

	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("update type must be a struct, got %v", t.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.types[typeName]; exists {
		if existing == t {
			return nil
		}
		return fmt.Errorf("type name %s already registered to %v", typeName, existing)
	}

	r.types[typeName] = t
	return nil
}

// IsRegistered checks whether a discriminator has a registered type.
func (r *UpdateTypeRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.types[typeName]
	return exists
}

// ListTypes returns all registered discriminators.
func (r *UpdateTypeRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}

// Decode decodes env into the update type registered for its "@type"
// discriminator. An unregistered discriminator or a body that does not match
// the registered schema is a decode error; the caller decides whether to
// drop the document.
func (r *UpdateTypeRegistry) Decode(env *contracts.Envelope) (contracts.Update, error) {
	typeName := env.TypeName()
	if typeName == "" {
		return nil, fmt.Errorf("document has no %s field", contracts.FieldType)
	}

	r.mu.RLock()
	t, exists := r.types[typeName]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no update type registered for %s", typeName)
	}

	instance := reflect.New(t).Interface()
	if err := Unmarshal(env.Raw, instance); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", typeName, err)
	}

	update, ok := instance.(contracts.Update)
	if !ok {
		return nil, fmt.Errorf("registered type for %s does not implement Update", typeName)
	}

	return update, nil
}
