package ioutil

import (
	"fmt"
	"io"
	"strings"
)

// Snippet reads up to limit bytes of r as a single line for log fields and
// error messages. Runs of whitespace collapse to one space and a body longer
// than limit ends in "...". A failing read is described rather than hidden.
func Snippet(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	truncated := int64(len(body)) > limit
	if truncated {
		body = body[:limit]
	}
	s := strings.Join(strings.Fields(string(body)), " ")
	if truncated {
		s += "..."
	}
	return s
}
