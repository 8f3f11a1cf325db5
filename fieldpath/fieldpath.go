// Package fieldpath provides reflective access to struct fields by dotted
// path ("Server.Listen", "Cache.TTL") and applies `default:"..."` struct tag
// values to zero fields. Configuration loaders use it to keep defaults next
// to the fields they belong to instead of in a separate table.
package fieldpath

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
)

var (
	// ErrNoField indicates the path does not resolve to a field.
	ErrNoField = errors.New("fieldpath: no such field")
	// ErrUnsupported indicates the field kind cannot be coerced.
	ErrUnsupported = errors.New("fieldpath: unsupported field kind")
)

// Get resolves the dotted path against target and returns the field value.
// Pointers along the path are dereferenced; nil pointers resolve to an
// ErrNoField error.
func Get(target any, path string) (any, error) {
	v, err := resolve(reflect.ValueOf(target), path, false)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Set resolves the dotted path against target (which must be a pointer) and
// assigns value to it, coercing strings and numbers to the field's type. Nil
// pointers along the path are allocated.
func Set(target any, path string, value any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("fieldpath: target must be a non-nil pointer")
	}
	field, err := resolve(rv, path, true)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("%w: %q is not settable", ErrNoField, path)
	}
	return assign(field, value, path)
}

// ApplyDefaults walks target (a pointer to struct) and assigns each field's
// `default:"..."` tag value wherever the field still holds its zero value.
// Nested and embedded structs are walked recursively; nil struct pointers
// with tagged fields below them are allocated.
func ApplyDefaults(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("fieldpath: target must be a non-nil pointer")
	}
	return applyDefaults(rv.Elem(), "")
}

// pathsCache memoizes the walk per concrete type. Config structs are
// enumerated on every load and flag-registration pass, so the reflective
// walk runs once per type.
var pathsCache sync.Map // reflect.Type -> []string

// Paths enumerates the dotted paths of all exported leaf fields of target,
// in declaration order.
func Paths(target any) []string {
	t := reflect.TypeOf(target)
	if cached, ok := pathsCache.Load(t); ok {
		return append([]string(nil), cached.([]string)...)
	}
	var out []string
	walkPaths(t, "", &out, map[reflect.Type]bool{})
	pathsCache.Store(t, out)
	return append([]string(nil), out...)
}

func resolve(v reflect.Value, path string, allocate bool) (reflect.Value, error) {
	if path == "" {
		return reflect.Value{}, fmt.Errorf("%w: empty path", ErrNoField)
	}
	current := v
	for _, part := range strings.Split(path, ".") {
		for current.Kind() == reflect.Ptr {
			if current.IsNil() {
				if !allocate || !current.CanSet() {
					return reflect.Value{}, fmt.Errorf("%w: nil pointer at %q in %q", ErrNoField, part, path)
				}
				current.Set(reflect.New(current.Type().Elem()))
			}
			current = current.Elem()
		}
		switch current.Kind() {
		case reflect.Struct:
			field := current.FieldByName(part)
			if !field.IsValid() {
				return reflect.Value{}, fmt.Errorf("%w: %q in %q", ErrNoField, part, path)
			}
			current = field
		case reflect.Map:
			if current.Type().Key().Kind() != reflect.String {
				return reflect.Value{}, fmt.Errorf("%w: map key type %s in %q", ErrUnsupported, current.Type().Key(), path)
			}
			value := current.MapIndex(reflect.ValueOf(part))
			if !value.IsValid() {
				return reflect.Value{}, fmt.Errorf("%w: map key %q in %q", ErrNoField, part, path)
			}
			current = value
		default:
			return reflect.Value{}, fmt.Errorf("%w: cannot descend into %s at %q in %q", ErrNoField, current.Kind(), part, path)
		}
	}
	for current.Kind() == reflect.Ptr && !current.IsNil() {
		current = current.Elem()
	}
	return current, nil
}

func assign(field reflect.Value, value any, path string) error {
	rv := reflect.ValueOf(value)
	if rv.IsValid() && rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	// time.Duration is an int64; check before the integer kinds.
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := cast.ToDurationE(value)
		if err != nil {
			return fmt.Errorf("fieldpath: %q: %w", path, err)
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		s, err := cast.ToStringE(value)
		if err != nil {
			return fmt.Errorf("fieldpath: %q: %w", path, err)
		}
		field.SetString(s)
	case reflect.Bool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return fmt.Errorf("fieldpath: %q: %w", path, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return fmt.Errorf("fieldpath: %q: %w", path, err)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(value)
		if err != nil {
			return fmt.Errorf("fieldpath: %q: %w", path, err)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return fmt.Errorf("fieldpath: %q: %w", path, err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: %s at %q", ErrUnsupported, field.Type(), path)
		}
		parts, err := cast.ToStringSliceE(value)
		if err != nil {
			return fmt.Errorf("fieldpath: %q: %w", path, err)
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("%w: %s at %q", ErrUnsupported, field.Kind(), path)
	}
	return nil
}

func applyDefaults(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		field := v.Field(i)
		path := sf.Name
		if prefix != "" {
			path = prefix + "." + sf.Name
		}
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				if !hasDefaultsBelow(field.Type().Elem(), map[reflect.Type]bool{}) {
					continue
				}
				field.Set(reflect.New(field.Type().Elem()))
			}
			if err := applyDefaults(field.Elem(), path); err != nil {
				return err
			}
			continue
		}
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := applyDefaults(field, path); err != nil {
				return err
			}
			continue
		}
		tag, ok := sf.Tag.Lookup("default")
		if !ok || !field.IsZero() {
			continue
		}
		if err := assign(field, tag, path); err != nil {
			return err
		}
	}
	return nil
}

func hasDefaultsBelow(t reflect.Type, seen map[reflect.Type]bool) bool {
	if seen[t] {
		return false
	}
	seen[t] = true
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if _, ok := sf.Tag.Lookup("default"); ok {
			return true
		}
		ft := sf.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && hasDefaultsBelow(ft, seen) {
			return true
		}
	}
	return false
}

func walkPaths(t reflect.Type, prefix string, out *[]string, seen map[reflect.Type]bool) {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t == reflect.TypeOf(time.Time{}) {
		if prefix != "" {
			*out = append(*out, prefix)
		}
		return
	}
	if seen[t] {
		return
	}
	seen[t] = true
	defer delete(seen, t)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		path := sf.Name
		if prefix != "" {
			path = prefix + "." + sf.Name
		}
		walkPaths(sf.Type, path, out, seen)
	}
}
