package dbw

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadFixture reads a simulation fixture file.
func LoadFixture(path string) (map[MessageID]Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFixtureParse, err)
	}
	defer f.Close()
	return ParseFixture(f)
}

// ParseFixture reads "<hex_id>:<hex byte> <hex byte> ..." lines. Blank lines
// and lines starting with '#' are ignored; shorter payloads are zero-padded.
// A later line for the same identifier replaces an earlier one.
func ParseFixture(r io.Reader) (map[MessageID]Payload, error) {
	out := make(map[MessageID]Payload)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, p, err := parseFixtureLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d %q: %v", ErrFixtureParse, lineNo, line, err)
		}
		out[id] = p
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFixtureParse, err)
	}
	return out, nil
}

func parseFixtureLine(line string) (MessageID, Payload, error) {
	idStr, dataStr, ok := strings.Cut(line, ":")
	if !ok {
		return 0, Payload{}, fmt.Errorf("missing ':'")
	}

	idStr = strings.TrimSpace(idStr)
	idStr = strings.TrimPrefix(strings.TrimPrefix(idStr, "0x"), "0X")
	id, err := strconv.ParseUint(idStr, 16, 16)
	if err != nil {
		return 0, Payload{}, fmt.Errorf("invalid id: %v", err)
	}
	if !MessageID(id).Valid() {
		return 0, Payload{}, fmt.Errorf("id 0x%X exceeds 11 bits", id)
	}

	tokens := strings.Fields(dataStr)
	if len(tokens) == 0 {
		return 0, Payload{}, fmt.Errorf("no data bytes")
	}
	if len(tokens) > len(Payload{}) {
		return 0, Payload{}, fmt.Errorf("%d data bytes, at most 8 allowed", len(tokens))
	}
	var p Payload
	for i, tok := range tokens {
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return 0, Payload{}, fmt.Errorf("byte %d: %v", i, err)
		}
		p[i] = byte(b)
	}
	return MessageID(id), p, nil
}
