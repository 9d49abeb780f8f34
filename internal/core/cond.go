// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"go.mongodb.org/mongo-driver/bson"
)

// M is a document, filter or pipeline stage.
type M = bson.M

// Cond builders produce operator maps for Query.Where. Operator names are written
// without the "$" sigil; filter normalization adds it before the backend sees them.
//
// Example:
//
//	q.Where(fesdql.M{
//	    "id":  fesdql.In("507f1f77bcf86cd799439011", "507f191e810c19729de860ea"),
//	    "age": fesdql.Gte(18),
//	})

// Eq matches values equal to v.
func Eq(v any) M { return M{"eq": v} }

// Ne matches values not equal to v.
func Ne(v any) M { return M{"ne": v} }

// Gt matches values greater than v.
func Gt(v any) M { return M{"gt": v} }

// Gte matches values greater than or equal to v.
func Gte(v any) M { return M{"gte": v} }

// Lt matches values less than v.
func Lt(v any) M { return M{"lt": v} }

// Lte matches values less than or equal to v.
func Lte(v any) M { return M{"lte": v} }

// In matches any of the given values.
func In(values ...any) M { return M{"in": values} }

// Nin matches none of the given values.
func Nin(values ...any) M { return M{"nin": values} }

// Exists matches documents that have (or lack) the field.
func Exists(exists bool) M { return M{"exists": exists} }

// Regex matches string fields against pattern with the given options ("i", "m", ...).
func Regex(pattern, options string) M {
	if options == "" {
		return M{"regex": pattern}
	}
	return M{"regex": pattern, "options": options}
}

// Between matches values in the closed range [low, high].
func Between(low, high any) M { return M{"gte": low, "lte": high} }
