package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Part is one decoded data stream line.
type Part struct {
	Code    byte
	Payload json.RawMessage
}

// Text decodes a text or error part payload.
func (p Part) Text() (string, error) {
	var s string
	err := json.Unmarshal(p.Payload, &s)
	return s, err
}

// Decode unmarshals the payload into v.
func (p Part) Decode(v any) error {
	return json.Unmarshal(p.Payload, v)
}

// ParseDataStream reads data stream lines until EOF.
func ParseDataStream(r io.Reader) ([]Part, error) {
	var parts []Part

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		if len(raw) < 3 || raw[1] != ':' {
			return nil, fmt.Errorf("line %d: malformed part", line)
		}
		payload := make(json.RawMessage, len(raw)-2)
		copy(payload, raw[2:])
		if !json.Valid(payload) {
			return nil, fmt.Errorf("line %d: invalid json payload", line)
		}
		parts = append(parts, Part{Code: raw[0], Payload: payload})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return parts, nil
}
