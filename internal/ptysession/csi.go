package ptysession

import "io"

// csiScanner recognizes a narrow, fixed set of terminal device queries
// (Device Status Report "cursor position" and Primary Device Attributes)
// inside a byte stream that may split a sequence across reads, answers
// them on behalf of the real terminal so the child does not stall, and
// removes them from the forwarded stream so the real terminal never sees
// them and double-replies on stdin. Every other byte, escape sequences
// included, passes through untouched.
type csiScanner struct {
	pending []byte // partial potential-query prefix held across reads
}

const (
	dsrCursorPosition = "\x1b[6n"
	dsrReply          = "\x1b[1;1R"
	da1Query          = "\x1b[c"
	da1Reply          = "\x1b[?1;2c"
)

// scan returns data with answered queries removed, writing canned replies
// to ptm. A trailing prefix that could still grow into one of the two
// queries is held back until the next call resolves it; everything else is
// forwarded in order.
func (c *csiScanner) scan(data []byte, ptm io.Writer) []byte {
	buf := data
	if len(c.pending) > 0 {
		buf = append(c.pending, data...)
		c.pending = nil
	}

	out := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); {
		if buf[i] != 0x1b {
			out = append(out, buf[i])
			i++
			continue
		}
		rest := buf[i:]
		switch {
		case hasPrefix(rest, dsrCursorPosition):
			// Reply with row 1, col 1; the child only needs a well-formed
			// answer to stop blocking, not real cursor geometry.
			ptm.Write([]byte(dsrReply))
			i += len(dsrCursorPosition)
		case hasPrefix(rest, da1Query):
			ptm.Write([]byte(da1Reply))
			i += len(da1Query)
		case isQueryPrefix(rest):
			// Could still become a query; hold it until the next chunk.
			c.pending = append([]byte(nil), rest...)
			return out
		default:
			out = append(out, buf[i])
			i++
		}
	}
	return out
}

func hasPrefix(b []byte, s string) bool {
	if len(b) < len(s) {
		return false
	}
	return string(b[:len(s)]) == s
}

// isQueryPrefix reports whether b is a proper prefix of one of the two
// answerable queries; only such prefixes are worth withholding at a chunk
// boundary.
func isQueryPrefix(b []byte) bool {
	return isProperPrefixOf(b, dsrCursorPosition) || isProperPrefixOf(b, da1Query)
}

func isProperPrefixOf(b []byte, s string) bool {
	return len(b) < len(s) && string(b) == s[:len(b)]
}
