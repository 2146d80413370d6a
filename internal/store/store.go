// Package store is the document store client used by every module.
//
// Documents are addressed by their application-level "id" field. Filters are
// equality matches on document fields; ordering is expressed with Sort.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// SortField orders query results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Asc is shorthand for an ascending sort on field.
func Asc(field string) SortField { return SortField{Field: field} }

// Desc is shorthand for a descending sort on field.
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// Query selects documents from a collection.
type Query struct {
	Filter bson.M
	Sort   []SortField
	Skip   int64
	Limit  int64
}

// Update is a partial modification applied to every matching document.
type Update struct {
	Set bson.M
	Inc bson.M
}

// Op is the kind of write reported by Watch.
type Op string

const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpReplace Op = "replace"
	OpDelete  Op = "delete"
)

// Change is emitted by Watch after a write lands.
// Document holds the document after the change when the store knows it; deletes
// may carry no document.
type Change struct {
	Op         Op
	Collection string
	Document   bson.M
}

// StringField returns a string field of the changed document, if present.
func (c Change) StringField(name string) (string, bool) {
	if c.Document == nil {
		return "", false
	}
	v, ok := c.Document[name].(string)
	return v, ok
}

// Store is the contract shared by the Mongo and in-memory implementations.
type Store interface {
	Insert(ctx context.Context, collection string, doc any) error
	InsertMany(ctx context.Context, collection string, docs []any) error
	// FindOne decodes the first matching document into out and reports whether one was found.
	FindOne(ctx context.Context, collection string, filter bson.M, out any) (bool, error)
	// Find decodes all matching documents into out, which must be a pointer to a slice.
	Find(ctx context.Context, collection string, q Query, out any) error
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
	// Update applies u to every matching document and returns the number matched.
	Update(ctx context.Context, collection string, filter bson.M, u Update) (int64, error)
	// Delete removes every matching document and returns the number deleted.
	Delete(ctx context.Context, collection string, filter bson.M) (int64, error)
	// Watch streams changes to collection until ctx is cancelled.
	Watch(ctx context.Context, collection string) (<-chan Change, error)
	Close(ctx context.Context) error
}

// ByID is the filter for a single document by application id.
func ByID(id string) bson.M { return bson.M{"id": id} }
