package core

import (
	"github.com/coregx/fesdql/internal/util"
)

// Schema names a collection. It implements Namer and can be passed to
// Query.CollectionOf.
type Schema struct {
	// Name is the CamelCase type name of the collection, e.g. "OrderItem2024Schema".
	Name string
	// Collection is the collection name, e.g. "order_item_2024".
	Collection string
}

// CollectionName implements Namer.
func (s Schema) CollectionName() string {
	return s.Collection
}

// NewSchema returns the Schema of a collection.
func NewSchema(collection string) Schema {
	return Schema{
		Name:       util.Under2Camel(collection) + "Schema",
		Collection: collection,
	}
}

// GenSchema derives the Schema of a shard of base, for collections split by a
// suffix such as a year or a tenant. The shard collection is "<base>_<suffix>";
// an empty suffix returns the Schema of base itself.
func GenSchema(base Namer, suffix string) (Schema, error) {
	if base == nil {
		return Schema{}, invalidArgument("schema base is nil")
	}
	name := base.CollectionName()
	if name == "" {
		return Schema{}, invalidArgument("%T provides an empty collection name", base)
	}
	if suffix == "" {
		return NewSchema(name), nil
	}

	return Schema{
		Name:       util.Under2Camel(name) + util.Capitalize(suffix) + "Schema",
		Collection: name + "_" + suffix,
	}, nil
}
