package resolve

import (
	"strings"
	"sync"

	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/source"
)

// TableClassMap is the bidirectional table↔class mapping built once per run.
// It is insert-only: entries are added with atomic try-insert semantics and
// never mutated afterwards, so concurrent readers after the build barrier
// need no locking.
type TableClassMap struct {
	byTable sync.Map // lower(table name) -> *source.ClassModel
	byClass sync.Map // lower(class name) -> *schema.Table
}

// NewTableClassMap creates an empty map.
func NewTableClassMap() *TableClassMap {
	return &TableClassMap{}
}

// TryInsert records the pairing. At most one class maps to a table and vice
// versa; the first writer wins and later attempts report false.
func (m *TableClassMap) TryInsert(table *schema.Table, class *source.ClassModel) bool {
	tKey := strings.ToLower(table.Name)
	cKey := strings.ToLower(class.Name)

	if _, loaded := m.byTable.LoadOrStore(tKey, class); loaded {
		return false
	}
	if _, loaded := m.byClass.LoadOrStore(cKey, table); loaded {
		m.byTable.Delete(tKey)
		return false
	}
	return true
}

// ClassFor returns the class reconciled against the named table.
func (m *TableClassMap) ClassFor(tableName string) (*source.ClassModel, bool) {
	v, ok := m.byTable.Load(strings.ToLower(tableName))
	if !ok {
		return nil, false
	}
	return v.(*source.ClassModel), true
}

// TableFor returns the table the named class maps to.
func (m *TableClassMap) TableFor(className string) (*schema.Table, bool) {
	v, ok := m.byClass.Load(strings.ToLower(className))
	if !ok {
		return nil, false
	}
	return v.(*schema.Table), true
}

// Range visits every table→class pairing.
func (m *TableClassMap) Range(fn func(table string, class *source.ClassModel) bool) {
	m.byTable.Range(func(k, v any) bool {
		return fn(k.(string), v.(*source.ClassModel))
	})
}

// SyncSet is an insert-only concurrent string set used for "already
// synchronized" bookkeeping. Safe for parallel writers.
type SyncSet struct {
	m sync.Map
}

// Add inserts key (lowercased).
func (s *SyncSet) Add(key string) {
	s.m.Store(strings.ToLower(key), struct{}{})
}

// Has reports whether key was inserted.
func (s *SyncSet) Has(key string) bool {
	_, ok := s.m.Load(strings.ToLower(key))
	return ok
}

// Len counts the inserted keys.
func (s *SyncSet) Len() int {
	n := 0
	s.m.Range(func(any, any) bool { n++; return true })
	return n
}
