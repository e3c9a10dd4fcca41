package fsm

import (
	"fmt"
	"reflect"
	"slices"
)

// SignalTag is the struct tag that binds a typed input or output field to a
// table signal.
const SignalTag = "signal"

// SignalNames returns the `signal` tags of a struct's fields in field order.
// v may be a struct value or a pointer to one. Every exported field must be
// tagged.
func SignalNames(v any) ([]string, error) {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("signal names: %T is not a struct", v)
	}

	var names []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, ok := f.Tag.Lookup(SignalTag)
		if !ok || tag == "" {
			return nil, fmt.Errorf("signal names: %s.%s has no %s tag", t.Name(), f.Name, SignalTag)
		}
		names = append(names, tag)
	}
	return names, nil
}

// CheckBinding verifies that the tagged fields of in and out list exactly the
// table's inputs and outputs, in vector order.
func CheckBinding(t *Table, in, out any) error {
	inNames, err := SignalNames(in)
	if err != nil {
		return err
	}
	if !slices.Equal(inNames, t.inputs) {
		return fmt.Errorf("table %s: input binding %v does not match declared inputs %v", t.name, inNames, t.inputs)
	}

	outNames, err := SignalNames(out)
	if err != nil {
		return err
	}
	if !slices.Equal(outNames, t.outputs) {
		return fmt.Errorf("table %s: output binding %v does not match declared outputs %v", t.name, outNames, t.outputs)
	}
	return nil
}

// Level converts a boolean into a signal value (1 or 0).
func Level(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
