package core

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// operatorSigil prefixes every backend query and update operator.
const operatorSigil = "$"

func operatorKey(key string) string {
	if strings.HasPrefix(key, operatorSigil) {
		return key
	}
	return operatorSigil + key
}

// normalizeFilter prepares a caller filter for the backend.
// Nested operator keys get the "$" sigil, and the public "id" key becomes the native
// key with its values translated. The input map is not modified.
func normalizeFilter(filter M) (M, error) {
	out := make(M, len(filter))

	for key, val := range filter {
		ops, isMap := asDocument(val)

		switch {
		case isMap && key == publicKey:
			translated, err := normalizeIDOperators(ops)
			if err != nil {
				return nil, err
			}
			out[nativeKey] = translated

		case isMap:
			prefixed := make(M, len(ops))
			for op, v := range ops {
				prefixed[operatorKey(op)] = v
			}
			out[key] = prefixed

		case key == publicKey:
			oid, err := internalID(val)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
			}
			out[nativeKey] = oid

		default:
			out[key] = val
		}
	}

	return out, nil
}

// normalizeIDOperators translates the values of operators applied to "id".
// List operators are translated element-wise, equality operators directly.
func normalizeIDOperators(ops M) (M, error) {
	out := make(M, len(ops))

	for op, v := range ops {
		key := operatorKey(op)

		switch key {
		case "$in", "$nin":
			list, ok := asList(v)
			if !ok {
				return nil, invalidArgument("id %s expects a list, got %T", key, v)
			}
			translated := make([]any, len(list))
			for i, item := range list {
				oid, err := internalID(item)
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
				}
				translated[i] = oid
			}
			out[key] = translated

		case "$eq", "$ne":
			oid, err := internalID(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
			}
			out[key] = oid

		default:
			out[key] = v
		}
	}

	return out, nil
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case primitive.A:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// normalizeUpdate wraps plain field updates in "$set". A single operator key is
// passed through unchanged.
func normalizeUpdate(update M) (M, error) {
	switch len(update) {
	case 0:
		return nil, invalidArgument("update payload is empty")
	case 1:
		for key, val := range update {
			if strings.HasPrefix(key, operatorSigil) {
				return M{key: val}, nil
			}
			return M{"$set": M{key: val}}, nil
		}
	}

	set := make(M, len(update))
	for key, val := range update {
		set[key] = val
	}
	return M{"$set": set}, nil
}

// prepareDocument copies doc for insertion, moving a public "id" to the native key.
// Documents that already carry a native key are copied unchanged.
func prepareDocument(doc M) (M, error) {
	out := make(M, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	id, hasID := out[publicKey]
	if _, hasNative := out[nativeKey]; !hasID || hasNative {
		return out, nil
	}

	oid, err := internalID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	out[nativeKey] = oid
	delete(out, publicKey)

	return out, nil
}

// restoreDocument replaces the native key of a returned document with the public id.
func restoreDocument(doc M) M {
	if doc == nil {
		return nil
	}
	if id, ok := doc[nativeKey]; ok && id != nil {
		doc[publicKey] = externalID(id)
		delete(doc, nativeKey)
	}
	return doc
}

// PagePipeline returns a copy of pipeline with $skip and $limit stages for the given
// page appended. The input slice is never modified. A non-positive page or limit
// returns an unpaged copy.
func PagePipeline(pipeline []M, page, limit int) []M {
	out := make([]M, len(pipeline), len(pipeline)+2)
	copy(out, pipeline)

	if page < 1 || limit < 1 {
		return out
	}

	return append(out,
		M{"$skip": int64(page-1) * int64(limit)},
		M{"$limit": int64(limit)},
	)
}
