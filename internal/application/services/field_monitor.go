package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FieldMonitor tracks which form fields differ from the value they were
// loaded with. onChange is called on every transition between unchanged and
// changed, outside the monitor's lock.
type FieldMonitor struct {
	mu        sync.Mutex
	originals map[string]string
	changed   map[string]struct{}
	onChange  func(field string, changed bool)
}

func NewFieldMonitor(onChange func(field string, changed bool)) *FieldMonitor {
	return &FieldMonitor{
		originals: make(map[string]string),
		changed:   make(map[string]struct{}),
		onChange:  onChange,
	}
}

func normalizeFieldValue(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// RegisterOriginal records the value a field was loaded with and clears any
// pending change on it.
func (m *FieldMonitor) RegisterOriginal(field string, value any) {
	m.mu.Lock()
	m.originals[field] = normalizeFieldValue(value)
	_, was := m.changed[field]
	delete(m.changed, field)
	m.mu.Unlock()

	if was {
		m.emit(field, false)
	}
}

// RecordChange compares value with the registered original and reports
// whether the field now differs. Unregistered fields compare against "".
func (m *FieldMonitor) RecordChange(field string, value any) bool {
	m.mu.Lock()
	differs := normalizeFieldValue(value) != m.originals[field]
	_, was := m.changed[field]
	if differs {
		m.changed[field] = struct{}{}
	} else {
		delete(m.changed, field)
	}
	m.mu.Unlock()

	if was != differs {
		m.emit(field, differs)
	}
	return differs
}

func (m *FieldMonitor) ClearField(field string) {
	m.mu.Lock()
	_, was := m.changed[field]
	delete(m.changed, field)
	delete(m.originals, field)
	m.mu.Unlock()

	if was {
		m.emit(field, false)
	}
}

func (m *FieldMonitor) ClearAll() {
	m.mu.Lock()
	fields := make([]string, 0, len(m.changed))
	for f := range m.changed {
		fields = append(fields, f)
	}
	m.changed = make(map[string]struct{})
	m.originals = make(map[string]string)
	m.mu.Unlock()

	sort.Strings(fields)
	for _, f := range fields {
		m.emit(f, false)
	}
}

// Changed returns the changed fields in sorted order.
func (m *FieldMonitor) Changed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.changed))
	for f := range m.changed {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (m *FieldMonitor) HasChanges() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.changed) > 0
}

func (m *FieldMonitor) emit(field string, changed bool) {
	if m.onChange != nil {
		m.onChange(field, changed)
	}
}
