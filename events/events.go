package events

import "io"

// Event is a single energy-deposition record delivered by the transport
// kernel. Events are transient: they are produced by a Stream, consumed by
// one scoring call, and never stored.
//
// Positions are in simulation length units (cm), energy deposits in MeV.
// Generation is the depth of the depositing particle in its production
// lineage tree; 0 means the particle came directly from the source. Process
// is the short tag of the physical process that created the particle and may
// be empty when the kernel did not record one.
type Event struct {
	X, Y, Z    float64
	Edep       float64
	Generation int
	Process    string
}

// Stream delivers events one at a time, in kernel order, for a single
// worker's share of the run. Next returns io.EOF once the stream is
// exhausted. A Stream must only ever be read by one goroutine.
type Stream interface {
	Next() (Event, error)
}

// SliceStream is an in-memory Stream backed by a slice. It is mostly useful
// in tests and as the identity example of the Stream contract.
type SliceStream struct {
	Events []Event
	pos    int
}

func (s *SliceStream) Next() (Event, error) {
	if s.pos >= len(s.Events) {
		return Event{}, io.EOF
	}
	ev := s.Events[s.pos]
	s.pos++
	return ev, nil
}

// Reset rewinds the stream to the beginning.
func (s *SliceStream) Reset() { s.pos = 0 }
