package db

import "go.mongodb.org/mongo-driver/bson"

// FilterBuilder builds MongoDB filters fluently.
type FilterBuilder struct {
	filter bson.M
}

// NewFilter creates a new FilterBuilder.
func NewFilter() *FilterBuilder {
	return &FilterBuilder{filter: bson.M{}}
}

// Eq adds an equality condition.
func (f *FilterBuilder) Eq(field string, value interface{}) *FilterBuilder {
	f.filter[field] = value
	return f
}

// Ne adds a not-equal condition.
func (f *FilterBuilder) Ne(field string, value interface{}) *FilterBuilder {
	f.filter[field] = bson.M{"$ne": value}
	return f
}

// In adds an $in condition.
func (f *FilterBuilder) In(field string, values interface{}) *FilterBuilder {
	f.filter[field] = bson.M{"$in": values}
	return f
}

// Exists checks if field exists.
func (f *FilterBuilder) Exists(field string, exists bool) *FilterBuilder {
	f.filter[field] = bson.M{"$exists": exists}
	return f
}

// Build returns the final bson.M filter.
func (f *FilterBuilder) Build() bson.M {
	return f.filter
}

// Empty returns a filter matching all documents.
func Empty() bson.M {
	return bson.M{}
}
