// Package instr decodes host instruction lines.
//
// Grammar (one line, ASCII):
//
//	<verb> <target> [p1] [p2]
//
// Fields are separated by whitespace or commas, so both "SET gain 5 0" and
// the board wire form "SET,gain,5,0" decode the same way. Verbs are
// case-sensitive. Anything that does not fit yields Kind Unknown with the
// raw text kept for diagnostics; Decode never fails hard.
package instr

import (
	"math"
	"strconv"
	"strings"
)

// Kind is the instruction verb.
type Kind uint8

const (
	Unknown Kind = iota
	Set
	Measure
	Reset
)

// Verb strings on the wire.
const (
	VerbSet     = "SET"
	VerbMeasure = "MSR"
	VerbReset   = "RST"
	VerbUnknown = "UNK"
)

func (k Kind) String() string {
	switch k {
	case Set:
		return VerbSet
	case Measure:
		return VerbMeasure
	case Reset:
		return VerbReset
	default:
		return VerbUnknown
	}
}

// Default is the value of an absent numeric parameter.
const Default = 0.0

// Instruction is one decoded host instruction.
type Instruction struct {
	Kind   Kind
	Target string
	P1     float64
	P2     float64
	// Params is the number of numeric parameters present (0..2).
	Params int
	// Raw is the input line, trimmed.
	Raw string
	// Reason explains an Unknown decode.
	Reason string
}

// Valid reports whether the instruction decoded to a known kind.
func (in Instruction) Valid() bool { return in.Kind != Unknown }

// String renders the canonical comma-separated wire form. Unknown
// instructions render as their raw text.
func (in Instruction) String() string {
	if in.Kind == Unknown {
		return in.Raw
	}
	var b strings.Builder
	b.WriteString(in.Kind.String())
	if in.Target != "" {
		b.WriteByte(',')
		b.WriteString(in.Target)
	}
	if in.Params >= 1 {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(in.P1, 'g', -1, 64))
	}
	if in.Params >= 2 {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(in.P2, 'g', -1, 64))
	}
	return b.String()
}

// Equal compares the decoded fields, ignoring Raw and Reason.
func (in Instruction) Equal(o Instruction) bool {
	return in.Kind == o.Kind && in.Target == o.Target &&
		in.P1 == o.P1 && in.P2 == o.P2 && in.Params == o.Params
}

func isSep(r rune) bool {
	return r == ',' || r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '\v' || r == '\f'
}

func unknown(raw, reason string) Instruction {
	return Instruction{Kind: Unknown, P1: Default, P2: Default, Raw: raw, Reason: reason}
}

// Decode parses one instruction line.
func Decode(text string) Instruction {
	raw := strings.TrimSpace(text)
	fields := strings.FieldsFunc(raw, isSep)
	if len(fields) == 0 {
		return unknown(raw, "empty instruction")
	}
	if len(fields) > 4 {
		return unknown(raw, "too many fields")
	}

	var kind Kind
	switch fields[0] {
	case VerbSet:
		kind = Set
	case VerbMeasure:
		kind = Measure
	case VerbReset:
		kind = Reset
	default:
		return unknown(raw, "unknown verb "+strconv.Quote(fields[0]))
	}

	in := Instruction{Kind: kind, P1: Default, P2: Default, Raw: raw}
	if len(fields) < 2 {
		if kind != Reset {
			return unknown(raw, "missing target")
		}
		return in
	}
	in.Target = fields[1]

	params := fields[2:]
	for i, f := range params {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return unknown(raw, "malformed parameter "+strconv.Quote(f))
		}
		if i == 0 {
			in.P1 = v
		} else {
			in.P2 = v
		}
	}
	in.Params = len(params)
	return in
}
