// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bufio"
	"bytes"
	"io"
)

// maxEventSize caps a single buffered SSE line.
const maxEventSize = 1 << 20

// sseReader parses Server-Sent Events from a response body.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &sseReader{scanner: s}
}

// next returns the next event name and joined data lines. It returns
// io.EOF once the stream ends with no pending data.
func (s *sseReader) next() (string, []byte, error) {
	var (
		event string
		data  [][]byte
	)
	for s.scanner.Scan() {
		line := bytes.TrimRight(s.scanner.Bytes(), "\r")
		if len(line) == 0 {
			if len(data) > 0 {
				return event, bytes.Join(data, []byte("\n")), nil
			}
			continue
		}
		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			event = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			chunk := bytes.TrimSpace(line[len("data:"):])
			data = append(data, append([]byte(nil), chunk...))
		}
		// id:, retry: and ":" comments are ignored.
	}
	if err := s.scanner.Err(); err != nil {
		return "", nil, err
	}
	if len(data) > 0 {
		return event, bytes.Join(data, []byte("\n")), nil
	}
	return "", nil, io.EOF
}
