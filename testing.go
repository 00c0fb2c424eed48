package symd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/coresymbols/symd/internal/errs"
	"github.com/coresymbols/symd/internal/interfaces"
)

// MockObjectStore is an in-memory interfaces.ObjectReader for testing the
// stash sync loop without a real S3 bucket. It is the same idea as the
// upstream pack's MockBackend: a faithful in-process stand-in that tracks
// call counts for assertions, not a production implementation.
type MockObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	etags   map[string]string

	listCalls int
	getCalls  int
	failList  error
	failGet   error
}

// NewMockObjectStore creates an empty mock object store.
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		objects: make(map[string][]byte),
		etags:   make(map[string]string),
	}
}

// Put adds or replaces an object at key with the given etag.
func (s *MockObjectStore) Put(key, etag string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.etags[key] = etag
}

// Delete removes an object.
func (s *MockObjectStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.etags, key)
}

// FailListWith makes the next List calls return err.
func (s *MockObjectStore) FailListWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failList = err
}

// FailGetWith makes the next Get calls return err.
func (s *MockObjectStore) FailGetWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = err
}

// List implements interfaces.ObjectReader.
func (s *MockObjectStore) List(_ context.Context, prefix string) ([]interfaces.ObjectEntry, error) {
	s.mu.Lock()
	s.listCalls++
	if s.failList != nil {
		err := s.failList
		s.mu.Unlock()
		return nil, errs.Wrap("mockobjectstore.List", errs.CodeRemoteUnavailable, err)
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []interfaces.ObjectEntry
	for key, data := range s.objects {
		if len(prefix) > 0 && (len(key) < len(prefix) || key[:len(prefix)] != prefix) {
			continue
		}
		entries = append(entries, interfaces.ObjectEntry{
			Key:  key,
			ETag: s.etags[key],
			Size: int64(len(data)),
		})
	}
	return entries, nil
}

// Get implements interfaces.ObjectReader.
func (s *MockObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	s.getCalls++
	if s.failGet != nil {
		err := s.failGet
		s.mu.Unlock()
		return nil, errs.Wrap("mockobjectstore.Get", errs.CodeRemoteUnavailable, err)
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errs.New("mockobjectstore.Get", errs.CodeRemoteUnavailable, "object not found: "+key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// CallCounts returns how many times List/Get have been invoked.
func (s *MockObjectStore) CallCounts() (list, get int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCalls, s.getCalls
}

var _ interfaces.ObjectReader = (*MockObjectStore)(nil)

// MockLogger is an interfaces.Logger that records every call instead of
// writing anywhere, for asserting on what a component logged.
type MockLogger struct {
	mu    sync.Mutex
	lines []string
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (l *MockLogger) record(level, format string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+": "+fmt.Sprintf(format, args...))
}

func (l *MockLogger) Debugf(format string, args ...interface{}) { l.record("debug", format, args) }
func (l *MockLogger) Infof(format string, args ...interface{})  { l.record("info", format, args) }
func (l *MockLogger) Warnf(format string, args ...interface{})  { l.record("warn", format, args) }
func (l *MockLogger) Errorf(format string, args ...interface{}) { l.record("error", format, args) }

// Lines returns a snapshot of every recorded log line, in order.
func (l *MockLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

var _ interfaces.Logger = (*MockLogger)(nil)
