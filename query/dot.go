package query

import (
	"reflect"
	"strings"
)

// Resolve walks a dotted path ("identity.name") through target and returns
// the value found. An empty path returns target itself. When a segment
// cannot be resolved the container reached so far is returned; use Lookup
// to tell the two cases apart.
func Resolve(target any, path string) any {
	v, _ := walk(target, path)
	return v
}

// Lookup is Resolve with an explicit found signal.
func Lookup(target any, path string) (any, bool) {
	return walk(target, path)
}

func walk(target any, path string) (any, bool) {
	if path == "" {
		return target, true
	}

	current := target
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}
		next, ok := step(current, segment)
		if !ok {
			return current, false
		}
		current = next
	}
	return current, true
}

// step resolves one segment: map key, exported field, then zero-argument
// method. Field and method names match case-insensitively with underscores
// ignored, so "created_at" finds CreatedAt.
func step(target any, segment string) (any, bool) {
	if target == nil {
		return nil, false
	}

	v := reflect.ValueOf(target)
	want := normalize(segment)

	if m, ok := method(v, want); ok {
		return m, true
	}

	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := v.MapIndex(reflect.ValueOf(segment).Convert(v.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if f.IsExported() && normalize(f.Name) == want {
				return v.Field(i).Interface(), true
			}
		}
		if m, ok := method(v, want); ok {
			return m, true
		}
	}
	return nil, false
}

func method(v reflect.Value, want string) (any, bool) {
	t := v.Type()
	for i := range t.NumMethod() {
		m := t.Method(i)
		if normalize(m.Name) != want {
			continue
		}
		fn := v.Method(i)
		if fn.Type().NumIn() != 0 || fn.Type().NumOut() == 0 {
			continue
		}
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, false
		}
		return fn.Call(nil)[0].Interface(), true
	}
	return nil, false
}

func normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}
