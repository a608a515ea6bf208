package weaviate

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a mock implementation of ClientInterface for testing.
type MockClient struct {
	mu sync.Mutex
	// Objects stores objects by "ClassName/ObjectID" key
	Objects map[string]*Object
	Classes []*Class
	// Err can be set to make methods return an error
	Err error
}

// NewMockClient creates a new MockClient for testing.
func NewMockClient() *MockClient {
	return &MockClient{Objects: make(map[string]*Object)}
}

func objectKey(className, objectID string) string {
	return className + "/" + objectID
}

// Object returns a stored object or nil
func (m *MockClient) Object(className, objectID string) *Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Objects[objectKey(className, objectID)]
}

// GetClasses returns all class names from the mock schema.
func (m *MockClient) GetClasses(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var classes []string
	for _, c := range m.Classes {
		classes = append(classes, c.Class)
	}
	return classes, nil
}

// CreateClass adds a class to the mock schema.
func (m *MockClient) CreateClass(ctx context.Context, class *Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, c := range m.Classes {
		if c.Class == class.Class {
			return fmt.Errorf("class %s already exists", class.Class)
		}
	}
	m.Classes = append(m.Classes, class)
	return nil
}

// GetObject returns a specific object from the mock store.
func (m *MockClient) GetObject(ctx context.Context, className, objectID string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	obj, ok := m.Objects[objectKey(className, objectID)]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return obj, nil
}

// CreateObject adds an object to the mock store.
func (m *MockClient) CreateObject(ctx context.Context, obj *Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	key := objectKey(obj.Class, obj.ID)
	if _, ok := m.Objects[key]; ok {
		return fmt.Errorf("object already exists: %s", key)
	}
	m.Objects[key] = obj
	return nil
}

// UpdateObject updates an object in the mock store.
func (m *MockClient) UpdateObject(ctx context.Context, obj *Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	key := objectKey(obj.Class, obj.ID)
	if _, ok := m.Objects[key]; !ok {
		return ErrObjectNotFound
	}
	m.Objects[key] = obj
	return nil
}

// DeleteObject removes an object from the mock store.
func (m *MockClient) DeleteObject(ctx context.Context, className, objectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	key := objectKey(className, objectID)
	if _, ok := m.Objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(m.Objects, key)
	return nil
}

// GetClassCount returns the count of objects in a class.
func (m *MockClient) GetClassCount(ctx context.Context, className string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	count := 0
	for _, obj := range m.Objects {
		if obj.Class == className {
			count++
		}
	}
	return count, nil
}

// Verify MockClient implements ClientInterface
var _ ClientInterface = (*MockClient)(nil)
