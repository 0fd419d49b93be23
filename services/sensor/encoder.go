package sensor

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"lighttunnel-go/errcode"

	"github.com/fxamacker/cbor/v2"
)

// Encoder writes replies to the host.
type Encoder interface {
	OK(verb string) error
	Err(code errcode.Code, detail string) error
	Observation(o Observation) error
}

// NewEncoder returns the encoder for a link format: "cbor" or text.
func NewEncoder(format string, w io.Writer) Encoder {
	if format == "cbor" {
		return NewCBOREncoder(w)
	}
	return NewTextEncoder(w)
}

// TextEncoder writes one comma-separated line per reply:
//
//	OK,<verb>
//	ERR,<code>,<detail>
//	OBS,<seq>,<target>,<ir>,<visible>   (or OBS,<seq>,<target>,FAIL)
type TextEncoder struct {
	w io.Writer
}

func NewTextEncoder(w io.Writer) *TextEncoder { return &TextEncoder{w: w} }

func (e *TextEncoder) OK(verb string) error {
	_, err := io.WriteString(e.w, "OK,"+verb+"\n")
	return err
}

func (e *TextEncoder) Err(code errcode.Code, detail string) error {
	line := "ERR," + string(code)
	if detail != "" {
		line += "," + strings.ReplaceAll(detail, "\n", " ")
	}
	_, err := io.WriteString(e.w, line+"\n")
	return err
}

func (e *TextEncoder) Observation(o Observation) error {
	var b strings.Builder
	b.WriteString("OBS,")
	b.WriteString(strconv.FormatUint(uint64(o.Seq), 10))
	b.WriteByte(',')
	b.WriteString(o.Target)
	if o.OK {
		fmt.Fprintf(&b, ",%d,%d\n", o.IR, o.Visible)
	} else {
		b.WriteString(",FAIL\n")
	}
	_, err := io.WriteString(e.w, b.String())
	return err
}

// Frame types for CBOR replies.
const (
	FrameOK          uint8 = 1
	FrameErr         uint8 = 2
	FrameObservation uint8 = 3
)

// Body keys.
const (
	KeyVerb    = 0
	KeyCode    = 0
	KeyDetail  = 1
	KeySeq     = 0
	KeyTarget  = 1
	KeyIR      = 2
	KeyVisible = 3
	KeyValid   = 4
)

// Frame is a CBOR reply: a two-element array of type and integer-keyed body.
type Frame struct {
	_    struct{} `cbor:",toarray"`
	Type uint8
	Body map[int]any
}

// CBOREncoder writes self-delimiting CBOR frames back to back.
type CBOREncoder struct {
	enc *cbor.Encoder
}

func NewCBOREncoder(w io.Writer) *CBOREncoder { return &CBOREncoder{enc: cbor.NewEncoder(w)} }

func (e *CBOREncoder) OK(verb string) error {
	return e.enc.Encode(Frame{Type: FrameOK, Body: map[int]any{KeyVerb: verb}})
}

func (e *CBOREncoder) Err(code errcode.Code, detail string) error {
	return e.enc.Encode(Frame{Type: FrameErr, Body: map[int]any{KeyCode: string(code), KeyDetail: detail}})
}

func (e *CBOREncoder) Observation(o Observation) error {
	return e.enc.Encode(Frame{Type: FrameObservation, Body: map[int]any{
		KeySeq:     o.Seq,
		KeyTarget:  o.Target,
		KeyIR:      o.IR,
		KeyVisible: o.Visible,
		KeyValid:   o.OK,
	}})
}
