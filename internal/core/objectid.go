package core

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// publicKey is the identifier field exposed to callers.
	publicKey = "id"
	// nativeKey is the backend primary key field.
	nativeKey = "_id"
)

// ToInternal converts a public string identifier into an ObjectID.
func ToInternal(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return oid, nil
}

// ToExternal converts an ObjectID into its public string form.
func ToExternal(oid primitive.ObjectID) string {
	return oid.Hex()
}

// internalID translates a public id value, passing ObjectIDs through.
func internalID(v any) (primitive.ObjectID, error) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id, nil
	case string:
		return ToInternal(id)
	default:
		return primitive.NilObjectID, fmt.Errorf("%w: unsupported id type %T", ErrInvalidIdentifier, v)
	}
}

// externalID converts any native key read back from the backend.
// Aggregation stages may group on arbitrary values, so non-ObjectID keys are stringified.
func externalID(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return ToExternal(id)
	case string:
		return id
	default:
		return fmt.Sprint(v)
	}
}
