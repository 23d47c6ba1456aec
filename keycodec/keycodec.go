// Package keycodec derives a stable, order-sensitive, type-discriminating
// cache key from an arbitrary call's positional arguments. It has no
// dependency on the cache package: callers that need KeyCodec-derived keys
// pass the resulting string as the K of a cache.Cache[string, V].
package keycodec

import (
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Codec derives keys from call arguments. The zero value is ready to use
// with skip_args = 0.
type Codec struct {
	skipArgs int
}

// Option configures a Codec.
type Option func(*Codec)

// WithSkipArgs ignores the first n positional arguments passed to Key,
// e.g. to drop a receiver from a bound method's argument list.
func WithSkipArgs(n int) Option {
	return func(c *Codec) { c.skipArgs = n }
}

// New builds a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives a digest from args, after dropping the first skip_args of
// them. Equal inputs (under the type-tagged encoding of encodeValue)
// always produce equal keys within one run; Key never panics or errors —
// a value with no natural serialization falls back to its identity.
func (c *Codec) Key(args ...interface{}) string {
	if c.skipArgs > 0 {
		if c.skipArgs >= len(args) {
			args = nil
		} else {
			args = args[c.skipArgs:]
		}
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		encodeValue(&b, reflect.ValueOf(a))
	}
	b.WriteByte(']')

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// encodeValue writes a canonical, type-tagged encoding of v to b.
func encodeValue(b *strings.Builder, v reflect.Value) {
	if !v.IsValid() {
		b.WriteString("nil")
		return
	}

	// A nil pointer never reaches the textual-form probes below: calling a
	// value-receiver String on a typed nil would panic, and Key never panics.
	if v.Kind() == reflect.Ptr && v.IsNil() {
		b.WriteString("nil")
		return
	}

	// Prefer an explicit, stable textual form when the type offers one.
	if tm, ok := v.Interface().(encoding.TextMarshaler); ok {
		if txt, err := tm.MarshalText(); err == nil {
			fmt.Fprintf(b, "text:%s", txt)
			return
		}
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		fmt.Fprintf(b, "str:%s", s.String())
		return
	}

	switch v.Kind() {
	case reflect.String:
		fmt.Fprintf(b, "s:%s", v.String())
	case reflect.Bool:
		fmt.Fprintf(b, "b:%t", v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fmt.Fprintf(b, "i:%d", v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		fmt.Fprintf(b, "u:%d", v.Uint())
	case reflect.Float32, reflect.Float64:
		fmt.Fprintf(b, "f:%g", v.Float())

	case reflect.Slice, reflect.Array:
		// Ordered container: preserve order.
		b.WriteString("seq[")
		n := v.Len()
		for i := 0; i < n; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeValue(b, v.Index(i))
		}
		b.WriteByte(']')

	case reflect.Map:
		// Unordered container: sort by each element's own digest so
		// iteration order never affects the result.
		keys := v.MapKeys()
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			var e strings.Builder
			encodeValue(&e, k)
			e.WriteByte('=')
			encodeValue(&e, v.MapIndex(k))
			parts = append(parts, e.String())
		}
		sort.Strings(parts)
		b.WriteString("map{")
		b.WriteString(strings.Join(parts, ","))
		b.WriteByte('}')

	case reflect.Ptr:
		// No natural serialization beyond the pointee's own rules already
		// tried above: fall back to identity. This only deduplicates the
		// same instance, never structurally equal values.
		fmt.Fprintf(b, "identity:%p", v.Interface())

	case reflect.Struct:
		b.WriteString("struct{")
		t := v.Type()
		wrote := false
		for i := 0; i < v.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if wrote {
				b.WriteByte(',')
			}
			wrote = true
			fmt.Fprintf(b, "%s:", f.Name)
			encodeValue(b, v.Field(i))
		}
		b.WriteByte('}')

	case reflect.Interface:
		encodeValue(b, v.Elem())

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		// No stable content-based encoding: identity fallback.
		fmt.Fprintf(b, "identity:%v:%#x", v.Type(), v.Pointer())

	default:
		// Complex numbers and anything else with no pointer identity:
		// fall back to its default formatting, type-tagged.
		fmt.Fprintf(b, "v:%v:%v", v.Type(), v.Interface())
	}
}
