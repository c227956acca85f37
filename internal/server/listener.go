package server

import (
	"bytes"
	"net"
)

// maxHeadBytes bounds how much of a request head the filter will buffer
// before giving up and passing the connection through untouched.
const maxHeadBytes = 16 * 1024

// audioRequestLine identifies requests whose head must be filtered.
var audioRequestLine = []byte("POST /api/audio")

// transferEncodingPrefix matches the header line to drop, compared
// case-insensitively.
var transferEncodingPrefix = []byte("transfer-encoding:")

// rawAudioListener wraps a TCP listener and filters the first request head on
// each accepted connection. If that request is a POST to the audio ingestion
// route, any Transfer-Encoding header is removed before net/http parses the
// request, so a device streaming raw PCM while (incorrectly) declaring
// chunked encoding is not run through the chunked decoder. With the header
// gone and no Content-Length, net/http treats the request as bodyless and the
// payload bytes stay on the wire for the handler to read via Hijack.
//
// Only the first request per connection is inspected: an unframed upload
// cannot share its connection with a follow-up request anyway, and the
// ingest handler closes hijacked connections when done. An audio POST sent
// later on a keep-alive connection therefore reaches net/http with its
// Transfer-Encoding intact; the ingest handler rejects those rather than
// store a chunk-framed body.
type rawAudioListener struct {
	net.Listener
}

// NewRawAudioListener wraps l with the audio request head filter.
func NewRawAudioListener(l net.Listener) net.Listener {
	return &rawAudioListener{Listener: l}
}

func (l *rawAudioListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &rawAudioConn{Conn: conn}, nil
}

// rawAudioConn buffers the inbound byte stream until the end of the first
// request head, rewrites the head if needed, then degrades to a transparent
// pass-through.
type rawAudioConn struct {
	net.Conn

	headDone bool   // head processed (or given up on); pass-through mode
	head     []byte // accumulated head bytes while scanning
	pending  []byte // filtered bytes not yet handed to the server
	stripped bool   // a Transfer-Encoding header was removed
}

func (c *rawAudioConn) Read(p []byte) (int, error) {
	for {
		// Serve filtered bytes first.
		if len(c.pending) > 0 {
			n := copy(p, c.pending)
			c.pending = c.pending[n:]
			return n, nil
		}

		if c.headDone {
			return c.Conn.Read(p)
		}

		buf := make([]byte, 4096)
		n, err := c.Conn.Read(buf)
		if n > 0 {
			c.head = append(c.head, buf[:n]...)

			if idx := bytes.Index(c.head, []byte("\r\n\r\n")); idx >= 0 {
				head, body := c.head[:idx+4], c.head[idx+4:]
				c.pending = append(c.filterHead(head), body...)
				c.head = nil
				c.headDone = true
			} else if len(c.head) > maxHeadBytes {
				// Oversized head; stop scanning and hand everything through.
				c.pending = c.head
				c.head = nil
				c.headDone = true
			}
		}

		if err != nil {
			if len(c.head) > 0 {
				// Connection ended mid-head; flush what we have. The
				// error resurfaces on the next underlying read.
				c.pending = c.head
				c.head = nil
				c.headDone = true
				continue
			}
			if len(c.pending) > 0 {
				continue
			}
			return 0, err
		}
	}
}

// filterHead removes Transfer-Encoding header lines from an audio ingestion
// request head. Heads of other requests pass through unchanged.
func (c *rawAudioConn) filterHead(head []byte) []byte {
	if !bytes.HasPrefix(head, audioRequestLine) {
		return head
	}
	// Reject near-miss paths like /api/audioXYZ.
	if rest := head[len(audioRequestLine):]; len(rest) > 0 && rest[0] != ' ' && rest[0] != '?' {
		return head
	}

	lines := bytes.SplitAfter(head, []byte("\r\n"))
	filtered := make([]byte, 0, len(head))
	for _, line := range lines {
		if len(line) >= len(transferEncodingPrefix) &&
			bytes.EqualFold(line[:len(transferEncodingPrefix)], transferEncodingPrefix) {
			c.stripped = true
			continue
		}
		filtered = append(filtered, line...)
	}

	return filtered
}

// TransferEncodingStripped reports whether the filter removed a
// Transfer-Encoding header from this connection's first request.
func (c *rawAudioConn) TransferEncodingStripped() bool {
	return c.stripped
}
