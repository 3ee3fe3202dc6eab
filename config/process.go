package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

const (
	tagDefault = "default"
	tagEnv     = "env"
)

var durationType = reflect.TypeOf(time.Duration(0))

// applyDefaults walks the struct and fills every zero-valued field
// carrying a default tag.
func applyDefaults(cfg any) error {
	return walkFields(reflect.ValueOf(cfg).Elem(), func(field reflect.Value, sf reflect.StructField) error {
		defaultVal, ok := sf.Tag.Lookup(tagDefault)
		if !ok || !field.IsZero() {
			return nil
		}
		if err := setFieldFromString(field, defaultVal); err != nil {
			return fmt.Errorf("default for field %s: %w", sf.Name, err)
		}
		return nil
	})
}

// applyEnvOverrides walks the struct and overwrites every field whose
// env-tagged variable is set, regardless of the field's current value.
func applyEnvOverrides(cfg any) error {
	return walkFields(reflect.ValueOf(cfg).Elem(), func(field reflect.Value, sf reflect.StructField) error {
		envName, ok := sf.Tag.Lookup(tagEnv)
		if !ok {
			return nil
		}
		raw, ok := os.LookupEnv(envName)
		if !ok {
			return nil
		}
		if err := setFieldFromString(field, raw); err != nil {
			return fmt.Errorf("environment variable %s: %w", envName, err)
		}
		return nil
	})
}

// walkFields visits every settable leaf field, descending into nested
// structs.
func walkFields(v reflect.Value, visit func(reflect.Value, reflect.StructField) error) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := walkFields(field, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(field, sf); err != nil {
			return err
		}
	}
	return nil
}

// setFieldFromString converts a string to the field's type and sets it.
// Durations and string slices get explicit handling; everything else
// goes through the cast library.
func setFieldFromString(field reflect.Value, raw string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", raw, err)
		}
		field.SetInt(int64(d))
		return nil
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		field.Set(reflect.ValueOf(out))
		return nil
	default:
		converted, err := cast.FromType(raw, field.Type())
		if err != nil {
			return fmt.Errorf("converting %q to %v: %w", raw, field.Type(), err)
		}
		field.Set(reflect.ValueOf(converted))
		return nil
	}
}
