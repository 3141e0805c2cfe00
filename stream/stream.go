package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"nutrichat/models"
)

const dataPrefix = "data: "

// ErrRestricted is returned when the backend short-circuits the stream into
// the restricted-access flow.
var ErrRestricted = errors.New("stream: restricted content")

// StreamError is a backend-reported stream failure (is_success=false with
// errors). The partial model built so far stays untouched.
type StreamError struct {
	Errors []string
}

func (e *StreamError) Error() string {
	return "stream: backend reported failure: " + strings.Join(e.Errors, "; ")
}

// Read consumes a line-delimited "data: <json>" response body, decoding
// each line independently and applying chunks strictly in receipt order.
// Blank lines and non-data lines are skipped. A restricted chunk aborts
// with ErrRestricted; a failed chunk aborts with StreamError without
// calling apply.
func Read(ctx context.Context, body io.Reader, apply func(models.Chunk) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, dataPrefix)

		var w wireChunk
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return fmt.Errorf("stream: decoding chunk: %w", err)
		}
		chunk := mapChunk(w)
		if chunk.IsRestricted {
			return ErrRestricted
		}
		if !chunk.IsSuccess && len(chunk.Errors) > 0 {
			return &StreamError{Errors: chunk.Errors}
		}
		if err := apply(chunk); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream: reading body: %w", err)
	}
	return nil
}
