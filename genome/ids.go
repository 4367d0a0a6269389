package genome

// ID identifies a genome. IDs are unique within a run and increase monotonically.
type ID uint64

// IDSource hands out genome IDs. It is not safe for concurrent use; a run's
// single controller owns it.
type IDSource struct {
	next ID
}

// NewIDSource creates a source whose first ID is 1.
func NewIDSource() *IDSource {
	return &IDSource{next: 1}
}

// Next returns the next unique genome ID.
func (s *IDSource) Next() ID {
	id := s.next
	s.next++
	return id
}

// Peek returns the ID that the next call to Next will hand out.
func (s *IDSource) Peek() ID {
	return s.next
}

// NewIDSourceFrom creates a source that resumes at next, e.g. after loading a
// stored population.
func NewIDSourceFrom(next ID) *IDSource {
	if next < 1 {
		next = 1
	}
	return &IDSource{next: next}
}
