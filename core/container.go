package core

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
)

// Field declares one key of a container Schema together with the Go type its
// value must have.
type Field struct {
	Name     string
	Type     reflect.Type
	Required bool
}

// FieldOf declares an optional field of type T.
func FieldOf[T any](name string) Field {
	return Field{Name: name, Type: reflect.TypeFor[T]()}
}

// RequiredField declares a field of type T that Validate expects to be set.
func RequiredField[T any](name string) Field {
	f := FieldOf[T](name)
	f.Required = true
	return f
}

// accepts reports whether v may be stored under the field.
func (f Field) accepts(v any) bool {
	if v == nil {
		switch f.Type.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		default:
			return false
		}
	}
	return reflect.TypeOf(v).AssignableTo(f.Type)
}

// Schema is the static shape agreed between the initializer of a run and the
// components reading from its container. A container built without a schema
// accepts any key and value.
type Schema struct {
	fields map[string]Field
}

// NewSchema builds a schema from field declarations. Later declarations of
// the same name win.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		s.fields[f.Name] = f
	}
	return s
}

// Field returns the declaration for name.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	f, ok := s.fields[name]
	return f, ok
}

// Names returns the declared field names in sorted order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.fields))
}

func (s *Schema) check(key string, v any) error {
	if key == "" {
		return fmt.Errorf("%w: container key must not be empty", ErrInvalidArgument)
	}
	if s == nil {
		return nil
	}
	f, ok := s.fields[key]
	if !ok {
		return fmt.Errorf("%w: key %q is not declared by the run schema", ErrInvalidArgument, key)
	}
	if !f.accepts(v) {
		return fmt.Errorf("%w: key %q expects %s, got %T", ErrInvalidArgument, key, f.Type, v)
	}
	return nil
}

// RuntimeContainer is the typed key/value bag injected into one run. It is
// created fresh per run, never pooled and safe for concurrent use by the
// steps of that run. Values are validated against the schema when set.
type RuntimeContainer struct {
	mu     sync.RWMutex
	schema *Schema
	values map[string]any
}

// NewRuntimeContainer creates an empty container bound to schema (nil for an
// untyped container).
func NewRuntimeContainer(schema *Schema) *RuntimeContainer {
	return &RuntimeContainer{schema: schema, values: map[string]any{}}
}

// Schema returns the schema the container validates against.
func (c *RuntimeContainer) Schema() *Schema { return c.schema }

// Set stores v under key after validating it against the schema.
func (c *RuntimeContainer) Set(key string, v any) error {
	if err := c.schema.check(key, v); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
	return nil
}

// SetAll validates every pair first and applies them only if all pass, so a
// bad request leaves the container untouched.
func (c *RuntimeContainer) SetAll(values map[string]any) error {
	for k, v := range values {
		if err := c.schema.check(k, v); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.values, values)
	return nil
}

// Get returns the value stored under key. There are no implicit defaults.
func (c *RuntimeContainer) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Require returns the value under key or ErrConfigurationMissing.
func (c *RuntimeContainer) Require(key string) (any, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConfigurationMissing, key)
	}
	return v, nil
}

// Delete removes key from the container.
func (c *RuntimeContainer) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Keys returns the currently set keys in sorted order.
func (c *RuntimeContainer) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.values))
}

// Snapshot returns a copy of all values.
func (c *RuntimeContainer) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.values)
}

// Validate reports the first required schema field that has not been set.
func (c *RuntimeContainer) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range c.schema.Names() {
		f := c.schema.fields[name]
		if !f.Required {
			continue
		}
		if _, ok := c.values[name]; !ok {
			return fmt.Errorf("%w: required key %q", ErrConfigurationMissing, name)
		}
	}
	return nil
}

// Key is a typed handle for one container entry. Reads and writes through a
// Key are checked by the compiler on top of the schema validation.
//
//	var Multiplier = core.NewKey[float64]("multiplier")
//	schema := core.NewSchema(Multiplier.Field())
//	_ = Multiplier.Set(run.Container, 2.5)
//	m, err := Multiplier.Get(run.Container) // ErrConfigurationMissing when unset
type Key[T any] struct {
	name string
}

// NewKey creates a typed key.
func NewKey[T any](name string) Key[T] { return Key[T]{name: name} }

// Name returns the underlying string key.
func (k Key[T]) Name() string { return k.name }

// Field returns an optional schema declaration for the key.
func (k Key[T]) Field() Field { return FieldOf[T](k.name) }

// Required returns a required schema declaration for the key.
func (k Key[T]) Required() Field { return RequiredField[T](k.name) }

// Set stores v in c.
func (k Key[T]) Set(c *RuntimeContainer, v T) error { return c.Set(k.name, v) }

// Get reads the value from c. An absent key yields ErrConfigurationMissing; a
// value of another type yields ErrInvalidArgument.
func (k Key[T]) Get(c *RuntimeContainer) (T, error) {
	var zero T
	v, ok := c.Get(k.name)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrConfigurationMissing, k.name)
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T, want %s", ErrInvalidArgument, k.name, v, reflect.TypeFor[T]())
	}
	return t, nil
}

// GetOr reads the value from c, returning def when it is absent or mistyped.
func (k Key[T]) GetOr(c *RuntimeContainer, def T) T {
	v, err := k.Get(c)
	if err != nil {
		return def
	}
	return v
}
