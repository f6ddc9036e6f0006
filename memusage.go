// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"reflect"
)

// dynamicMemUsage walks a value and totals the heap footprint reachable from
// it: the value's own size plus everything behind pointers, slices, maps and
// interfaces. It is an estimate; allocator overhead and sharing between
// values are not modeled. The pool charges each entry's footprint against
// the configured byte limit.
func dynamicMemUsage(v reflect.Value) uintptr {
	t := v.Type()
	bytes := t.Size()

	switch t.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			bytes += dynamicMemUsage(v.Elem())
		}

	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			break
		}

		// Byte slices dominate transaction data (scripts, witness
		// items). Their elements carry no indirection, so charge
		// length times element size without walking each byte.
		elemKind := t.Elem().Kind()
		if elemKind == reflect.Uint8 {
			bytes += uintptr(v.Len()) * t.Elem().Size()
			break
		}

		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i)
			if t.Kind() == reflect.Array {
				// Array storage is already counted by the
				// parent's size; only chase indirection.
				k := elem.Kind()
				if (k == reflect.Pointer ||
					k == reflect.Interface) &&
					!elem.IsNil() {

					bytes += dynamicMemUsage(elem.Elem())
				}
				continue
			}
			bytes += dynamicMemUsage(elem)
		}

	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			bytes += dynamicMemUsage(iter.Key())
			bytes += dynamicMemUsage(iter.Value())
		}

	case reflect.Struct:
		for _, f := range reflect.VisibleFields(t) {
			field := v.FieldByIndex(f.Index)
			switch field.Kind() {
			case reflect.Pointer, reflect.Interface:
				if !field.IsNil() {
					bytes += dynamicMemUsage(field.Elem())
				}
			case reflect.Slice, reflect.Array, reflect.Map:
				// The header is part of the struct size, so
				// subtract it before adding the full walk.
				bytes -= field.Type().Size()
				bytes += dynamicMemUsage(field)
			}
		}
	}

	return bytes
}
