package weaviate

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when an object does not exist in the index
var ErrObjectNotFound = errors.New("object not found")

// Object is a single indexed record
type Object struct {
	ID         string
	Class      string
	Properties map[string]interface{}
}

// Property is a class property definition
type Property struct {
	Name            string
	DataType        []string
	Description     string
	IndexSearchable *bool
}

// Class is a class definition
type Class struct {
	Class       string
	Description string
	Properties  []*Property
}

// ClientInterface defines the Weaviate operations the mirror needs.
// This interface enables mocking in tests.
type ClientInterface interface {
	// Schema operations
	GetClasses(ctx context.Context) ([]string, error)
	CreateClass(ctx context.Context, class *Class) error

	// Object operations
	GetObject(ctx context.Context, className, objectID string) (*Object, error)
	CreateObject(ctx context.Context, obj *Object) error
	UpdateObject(ctx context.Context, obj *Object) error
	DeleteObject(ctx context.Context, className, objectID string) error

	// Query operations
	GetClassCount(ctx context.Context, className string) (int, error)
}

// Verify that *Client implements ClientInterface at compile time
var _ ClientInterface = (*Client)(nil)
