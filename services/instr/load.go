package instr

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// LineError reports an instruction file line that could not be used.
type LineError struct {
	Line   int
	Text   string
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %q: %s", e.Line, e.Text, e.Reason)
}

// Load reads an instruction file: one instruction per line, blank lines and
// lines starting with '#' skipped. Every line must decode, and SET targets
// must appear in targets when targets is non-nil.
func Load(r io.Reader, targets map[string]bool) ([]Instruction, error) {
	var out []Instruction
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		in := Decode(line)
		if !in.Valid() {
			return nil, &LineError{Line: n, Text: line, Reason: in.Reason}
		}
		if in.Kind == Set && targets != nil && !targets[in.Target] {
			return nil, &LineError{Line: n, Text: line, Reason: "unknown target " + in.Target}
		}
		out = append(out, in)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
