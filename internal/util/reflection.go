package util

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// StructToDocument encodes a struct with the bson codec and decodes the result
// into a map, so tags, inline structs and custom marshalers apply exactly as
// they do on insert. Nested documents come back as bson.M, arrays as bson.A.
func StructToDocument(data any) (bson.M, error) {
	if !IsStruct(data) {
		return nil, fmt.Errorf("StructToDocument: expected struct, got %T", data)
	}

	raw, err := bson.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("StructToDocument: %w", err)
	}

	doc := bson.M{}
	if err = bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("StructToDocument: %w", err)
	}
	return doc, nil
}

// IsStruct reports whether data is a struct or a non-nil pointer to one.
func IsStruct(data any) bool {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	return v.Kind() == reflect.Struct
}
