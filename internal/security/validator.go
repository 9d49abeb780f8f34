// Package security provides operator validation and audit logging of document
// operations for fesdql.
package security

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Validator rejects filters and pipelines that use dangerous operators.
type Validator struct {
	blocked map[string]struct{}
	strict  bool
}

// ValidatorOption configures the Validator.
type ValidatorOption func(*Validator)

// WithStrict enables strict validation mode (more aggressive).
func WithStrict(strict bool) ValidatorOption {
	return func(v *Validator) {
		v.strict = strict
	}
}

// WithBlockedOperators adds operators to the blocked set. Names may omit the "$".
func WithBlockedOperators(ops ...string) ValidatorOption {
	return func(v *Validator) {
		for _, op := range ops {
			v.blocked[normalizeOperator(op)] = struct{}{}
		}
	}
}

// NewValidator creates a new operator validator with default dangerous operators.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		blocked: make(map[string]struct{}),
	}
	for _, op := range dangerousOperators {
		v.blocked[op] = struct{}{}
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.strict {
		for _, op := range strictOperators {
			v.blocked[op] = struct{}{}
		}
	}

	return v
}

// dangerousOperators run server-side JavaScript.
var dangerousOperators = []string{
	"$where",
	"$function",
	"$accumulator",
}

// strictOperators contains additional operators for strict mode.
// They are legitimate in trusted code but let untrusted input reach other
// collections or compute arbitrary expressions.
var strictOperators = []string{
	"$expr",
	"$lookup",
	"$graphLookup",
	"$merge",
	"$out",
	"$unionWith",
}

func normalizeOperator(op string) string {
	if strings.HasPrefix(op, "$") {
		return op
	}
	return "$" + op
}

// ValidateFilter checks a normalized filter or update document.
func (v *Validator) ValidateFilter(filter map[string]any) error {
	return v.walk(filter, "filter")
}

// ValidatePipeline checks every stage of an aggregation pipeline.
func (v *Validator) ValidatePipeline(pipeline []primitive.M) error {
	for i, stage := range pipeline {
		if err := v.walk(stage, fmt.Sprintf("pipeline stage %d", i)); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) walk(value any, path string) error {
	switch val := value.(type) {
	case primitive.M:
		return v.walkMap(val, path)
	case map[string]any:
		return v.walkMap(val, path)
	case bson.D:
		for _, e := range val {
			if err := v.check(e.Key, path); err != nil {
				return err
			}
			if err := v.walk(e.Value, path+"."+e.Key); err != nil {
				return err
			}
		}
	case primitive.A:
		return v.walkList(val, path)
	case []any:
		return v.walkList(val, path)
	case nil, string, []byte:
		return nil
	default:
		return v.walkValue(reflect.ValueOf(value), path)
	}
	return nil
}

// walkValue descends into typed slices and maps such as []bson.M or
// map[string]bson.D.
func (v *Validator) walkValue(rv reflect.Value, path string) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := v.walk(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if err := v.check(k, path); err != nil {
				return err
			}
			if err := v.walk(iter.Value().Interface(), path+"."+k); err != nil {
				return err
			}
		}
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			return v.walk(rv.Elem().Interface(), path)
		}
	}
	return nil
}

func (v *Validator) walkMap(m map[string]any, path string) error {
	for k, item := range m {
		if err := v.check(k, path); err != nil {
			return err
		}
		if err := v.walk(item, path+"."+k); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) walkList(l []any, path string) error {
	for i, item := range l {
		if err := v.walk(item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) check(key, path string) error {
	if _, ok := v.blocked[key]; ok {
		return fmt.Errorf("operator %s is not allowed in %s", key, path)
	}
	return nil
}
