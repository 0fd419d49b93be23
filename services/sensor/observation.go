package sensor

import "lighttunnel-go/drivers/si115x"

// MaxSeq is the last observation sequence number; the one after it is 0.
const MaxSeq = 100000

// Observation is one sample reported for an MSR instruction.
type Observation struct {
	Seq     uint32
	Target  string
	IR      uint16
	Visible uint16
	// OK is false when the output registers could not be read.
	OK bool
}

func newObservation(seq uint32, target string, r si115x.Reading) Observation {
	return Observation{Seq: seq, Target: target, IR: r.IR, Visible: r.Visible, OK: r.OK}
}

// sequence hands out observation numbers 0..MaxSeq inclusive.
type sequence struct{ n uint32 }

func (s *sequence) next() uint32 {
	v := s.n
	s.n = (s.n + 1) % (MaxSeq + 1)
	return v
}
