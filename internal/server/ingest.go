package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/esp-audio/recording-service/internal/audio"
)

// uploadResponse is the success payload of POST /api/audio. The audio
// parameters echo the device's header strings verbatim.
type uploadResponse struct {
	Status          string  `json:"status"`
	Message         string  `json:"message"`
	Filename        string  `json:"filename"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      string  `json:"sample_rate"`
	BitsPerSample   string  `json:"bits_per_sample"`
	Channels        string  `json:"channels"`
}

// errorResponse is the failure payload shared by all endpoints
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleAudio implements POST /api/audio: read the raw PCM payload per the
// body-reading policy, persist it, and answer with the stored filename and
// computed duration.
func (h *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	h.metrics.RecordUploadReceived()

	logger := h.logger.With(slog.String("request_id", uuid.NewString()))

	// The listener filter only rewrites the first request per connection, so
	// an audio POST reused on a keep-alive connection can still arrive with
	// Transfer-Encoding intact. Reading raw bytes here would store chunk
	// framing, so reject instead.
	if len(r.TransferEncoding) > 0 {
		logger.Warn("Rejecting chunked upload on reused connection",
			slog.String("transfer_encoding", strings.Join(r.TransferEncoding, ",")),
		)
		h.metrics.RecordUploadFailed("transfer_encoding")
		h.respond(w, nil, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: "Chunked transfer encoding is not supported on this endpoint",
		})
		return
	}

	sampleRate := r.Header.Get("x-audio-sample-rates")
	bits := r.Header.Get("x-audio-bits")
	channels := r.Header.Get("x-audio-channel")
	contentType := r.Header.Get("Content-Type")

	// Content-type mismatch is non-fatal; the device firmware is known to
	// send odd values.
	if !strings.Contains(strings.ToLower(contentType), "audio/pcm") {
		logger.Warn("Unexpected Content-Type", slog.String("content_type", contentType))
	}

	logger.Info("Receiving audio upload",
		slog.String("sample_rate", sampleRate),
		slog.String("bits_per_sample", bits),
		slog.String("channels", channels),
		slog.String("content_type", contentType),
		slog.Int64("content_length", r.ContentLength),
	)

	format, err := audio.ParseFormat(sampleRate, bits, channels, audio.Defaults{
		SampleRate:    h.config.Audio.DefaultSampleRate,
		BitsPerSample: h.config.Audio.DefaultBitDepth,
		Channels:      h.config.Audio.DefaultChannels,
	})
	if err != nil {
		logger.Error("Invalid audio parameters", slog.String("error", err.Error()))
		h.metrics.RecordUploadFailed("invalid_header")
		h.respond(w, nil, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Invalid audio parameters: %v", err),
		})
		return
	}

	body := h.readUploadBody(w, r, logger)
	if body.err != nil {
		logger.Error("Failed to read audio stream", slog.String("error", body.err.Error()))
		h.metrics.RecordUploadFailed("stream_read")
		h.respond(w, body.hijacked, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Failed to read audio stream: %v", body.err),
		})
		return
	}

	if body.truncated {
		logger.Warn("Audio data exceeds safety ceiling, truncating",
			slog.Int64("max_upload_bytes", h.config.Storage.MaxUploadBytes),
		)
		h.metrics.RecordTruncation()
	}

	if body.idleCutoff && len(body.data) > 0 {
		logger.Warn("Stream went quiet before close, storing partial data",
			slog.Int("received_bytes", len(body.data)),
		)
		h.metrics.RecordIdleCutoff()
	}

	if len(body.data) == 0 {
		logger.Warn("No audio data received")
		h.metrics.RecordUploadFailed("empty_body")
		h.respond(w, body.hijacked, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: "No audio data received",
		})
		return
	}

	filename, err := h.store.Save(body.data)
	if err != nil {
		logger.Error("Failed to save recording", slog.String("error", err.Error()))
		h.metrics.RecordUploadFailed("storage")
		h.respond(w, body.hijacked, http.StatusInternalServerError, errorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Server error: %v", err),
		})
		return
	}

	size := int64(len(body.data))
	duration := format.Duration(size)

	logger.Info("Saved recording",
		slog.String("filename", filename),
		slog.Int64("size_bytes", size),
		slog.Float64("duration_seconds", duration),
		slog.String("format", format.String()),
	)

	h.metrics.RecordUploadStored(size, time.Since(start).Seconds(), duration)

	h.respond(w, body.hijacked, http.StatusOK, uploadResponse{
		Status:          "success",
		Message:         "Audio received and saved",
		Filename:        filename,
		SizeBytes:       size,
		DurationSeconds: duration,
		SampleRate:      format.RawSampleRate,
		BitsPerSample:   format.RawBitsPerSample,
		Channels:        format.RawChannels,
	})
}

// uploadBody is the outcome of the body-reading policy. When hijacked is
// non-nil the response must be written over the raw connection.
type uploadBody struct {
	data       []byte
	truncated  bool
	idleCutoff bool
	hijacked   *hijackedConn
	err        error
}

// readUploadBody applies the body-reading policy:
//
//  1. Declared Content-Length: read exactly that many bytes from the parsed
//     body (zero means an empty upload); on a mid-stream failure fall back
//     once to the raw connection.
//  2. No declared length: take over the connection and accumulate fixed-size
//     chunks until the device closes the stream or the safety ceiling is hit.
func (h *HTTPServer) readUploadBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger) uploadBody {
	st := h.config.Storage

	// An explicit "Content-Length: 0" is a declared empty upload. The
	// connection must stay untouched: raw reads here would swallow the
	// head of whatever the client pipelines next.
	if _, declared := r.Header["Content-Length"]; declared && r.ContentLength == 0 {
		return uploadBody{}
	}

	if r.ContentLength > 0 {
		data := make([]byte, r.ContentLength)
		_, err := io.ReadFull(r.Body, data)
		if err == nil {
			return uploadBody{data: data}
		}

		logger.Error("Error reading audio stream, falling back to raw connection",
			slog.String("error", err.Error()),
		)

		hc, herr := hijackConn(w)
		if herr != nil {
			return uploadBody{err: err}
		}
		h.metrics.RecordRawStreamRead()

		data, truncated, idle, rerr := hc.readStream(st.ReadChunkBytes, st.MaxUploadBytes, st.GetReadIdleTimeout())
		if rerr != nil {
			return uploadBody{hijacked: hc, err: rerr}
		}
		return uploadBody{data: data, truncated: truncated, idleCutoff: idle, hijacked: hc}
	}

	// No declared length: the payload bytes never reached the parsed body
	// (the connection filter stripped any Transfer-Encoding declaration),
	// so read them straight off the wire.
	hc, err := hijackConn(w)
	if err != nil {
		// No hijack support on this connection; chunked reads from the
		// parsed body are the best remaining option.
		logger.Warn("Connection does not support raw reads, using request body",
			slog.String("error", err.Error()),
		)
		data, truncated, rerr := readChunked(r.Body, st.ReadChunkBytes, st.MaxUploadBytes)
		if rerr != nil {
			return uploadBody{err: rerr}
		}
		return uploadBody{data: data, truncated: truncated}
	}

	if rc, ok := hc.conn.(*rawAudioConn); ok && rc.TransferEncodingStripped() {
		logger.Info("Transfer-Encoding declaration stripped, reading opaque stream")
	}

	h.metrics.RecordRawStreamRead()

	data, truncated, idle, rerr := hc.readStream(st.ReadChunkBytes, st.MaxUploadBytes, st.GetReadIdleTimeout())
	if rerr != nil {
		return uploadBody{hijacked: hc, err: rerr}
	}
	return uploadBody{data: data, truncated: truncated, idleCutoff: idle, hijacked: hc}
}

// respond writes the JSON response through the normal writer, or over the
// hijacked connection when the normal path is gone.
func (h *HTTPServer) respond(w http.ResponseWriter, hc *hijackedConn, status int, v interface{}) {
	if hc != nil {
		// Keep the metrics wrapper's status in sync; WriteHeader is
		// unusable after a hijack.
		if rw, ok := w.(*responseWriter); ok {
			rw.statusCode = status
		}
		hc.writeJSON(status, v)
		return
	}
	writeJSON(w, status, v)
}

// hijackedConn is a connection taken over from net/http, including whatever
// the server had already buffered past the request head.
type hijackedConn struct {
	conn net.Conn
	rw   *bufio.ReadWriter
}

func hijackConn(w http.ResponseWriter) (*hijackedConn, error) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, fmt.Errorf("response writer does not support hijacking")
	}

	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, fmt.Errorf("failed to hijack connection: %w", err)
	}

	return &hijackedConn{conn: conn, rw: rw}, nil
}

// readStream accumulates chunkSize reads until the peer closes the stream,
// goes quiet past the idle deadline, or the ceiling is reached. Hitting the
// ceiling reports truncation, not failure; a deadline expiry still succeeds
// but is reported separately so a stalled upload shows up in the logs.
func (hc *hijackedConn) readStream(chunkSize int, ceiling int64, idle time.Duration) (data []byte, truncated, idleCutoff bool, err error) {
	buf := make([]byte, chunkSize)

	for int64(len(data)) < ceiling {
		hc.conn.SetReadDeadline(time.Now().Add(idle))

		n, rerr := hc.rw.Reader.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return data, false, false, nil
			}
			if isTimeout(rerr) {
				// The device went quiet without closing; the data
				// collected so far is the payload.
				return data, false, true, nil
			}
			return data, false, false, rerr
		}
	}

	return data, true, false, nil
}

// writeJSON writes a complete HTTP/1.1 response over the raw connection and
// closes it. A hijacked connection cannot be returned to net/http.
func (hc *hijackedConn) writeJSON(status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"status":"error","message":"Server error"}`)
	}

	hc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

	fmt.Fprintf(hc.rw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	fmt.Fprintf(hc.rw, "Content-Type: application/json\r\n")
	fmt.Fprintf(hc.rw, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(hc.rw, "Connection: close\r\n\r\n")
	hc.rw.Write(body)
	hc.rw.Flush()
	hc.conn.Close()
}

// readChunked applies the no-declared-length policy to an ordinary reader.
func readChunked(body io.Reader, chunkSize int, ceiling int64) ([]byte, bool, error) {
	var data []byte
	buf := make([]byte, chunkSize)

	for int64(len(data)) < ceiling {
		n, err := body.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return data, false, nil
			}
			return data, false, err
		}
	}

	return data, true, nil
}

// isTimeout reports whether err is a network read deadline expiry.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
