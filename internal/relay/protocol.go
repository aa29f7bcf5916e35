package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// textMarker prefixes the only stream lines that carry answer text.
const textMarker = "0:"

const (
	initialLineBuffer = 64 * 1024
	maxLineLength     = 2 * 1024 * 1024
)

// errLineTooLong is wrapped in the warning logged for a skipped oversized line.
var errLineTooLong = errors.New("line exceeds maximum length")

// DecodeLine decodes one line of the backend's line protocol. ok is false
// for blank lines and non-text markers. A text line whose payload is not a
// JSON string returns a *FormatParseWarning.
func DecodeLine(line string) (text string, ok bool, err error) {
	payload, ok := textPayload(line)
	if !ok {
		return "", false, nil
	}
	if err := json.Unmarshal([]byte(payload), &text); err != nil {
		return "", false, &FormatParseWarning{Line: strings.TrimRight(line, "\r"), Err: err}
	}
	return text, true, nil
}

// textPayload returns the raw JSON payload of a text line.
func textPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, textMarker) {
		return "", false
	}
	payload := strings.TrimSpace(line[len(textMarker):])
	return payload, payload != ""
}

// splitHighSurrogate detaches a trailing \uD800-\uDBFF escape from a JSON
// string literal. The backend encodes UTF-16 strings, so an astral character
// may be split between two fragments; the high half waits for the next one.
func splitHighSurrogate(payload string) (string, string) {
	const escLen = len(`\uD83D`)
	if len(payload) < escLen+2 || payload[len(payload)-1] != '"' {
		return payload, ""
	}
	esc := payload[len(payload)-1-escLen : len(payload)-1]
	if esc[0] != '\\' || (esc[1] != 'u' && esc[1] != 'U') || !isHighSurrogateHex(esc[2:]) {
		return payload, ""
	}
	// The backslash must not itself be escaped.
	slashes := 0
	for i := len(payload) - 1 - escLen; i >= 0 && payload[i] == '\\'; i-- {
		slashes++
	}
	if slashes%2 == 0 {
		return payload, ""
	}
	return payload[:len(payload)-1-escLen] + `"`, esc
}

func isHighSurrogateHex(hex string) bool {
	if len(hex) != 4 || (hex[0] != 'd' && hex[0] != 'D') {
		return false
	}
	switch hex[1] {
	case '8', '9', 'a', 'b', 'A', 'B':
	default:
		return false
	}
	return isHex(hex[2]) && isHex(hex[3])
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// streamDecoder turns text lines into fragments, carrying a dangling high
// surrogate over to the next text line.
type streamDecoder struct {
	log     *slog.Logger
	pending string
}

func (d *streamDecoder) line(line string, onFragment func(string) error) error {
	payload, ok := textPayload(line)
	if !ok {
		if strings.TrimSpace(line) != "" {
			d.log.Debug("skip non-text stream line", slog.String("marker", marker(line)))
		}
		return nil
	}
	if d.pending != "" && strings.HasPrefix(payload, `"`) {
		payload = `"` + d.pending + payload[1:]
	}
	payload, high := splitHighSurrogate(payload)

	var text string
	if err := json.Unmarshal([]byte(payload), &text); err != nil {
		d.log.Warn("skip malformed stream line",
			slog.Any("error", &FormatParseWarning{Line: strings.TrimRight(line, "\r"), Err: err}))
		return nil
	}
	d.pending = high
	return onFragment(text)
}

// finish flushes a high surrogate that never got its low half.
func (d *streamDecoder) finish(onFragment func(string) error) error {
	if d.pending == "" {
		return nil
	}
	d.pending = ""
	return onFragment("\uFFFD")
}

// ReadStream splits r into lines, reassembling lines that span reads, and
// calls onFragment with every decoded text fragment in order. Malformed and
// oversized lines are logged and skipped. An error from onFragment stops
// reading and is returned as is.
func ReadStream(ctx context.Context, log *slog.Logger, r io.Reader, onFragment func(string) error) error {
	if log == nil {
		log = slog.Default()
	}
	dec := &streamDecoder{log: log}
	br := bufio.NewReaderSize(r, initialLineBuffer)

	var (
		buf       []byte
		oversized bool
		head      string
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, readErr := br.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > maxLineLength {
				oversized = true
				head = string(buf[:min(len(buf), 64)])
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(readErr, bufio.ErrBufferFull) {
			continue
		}

		switch {
		case oversized:
			log.Warn("skip oversized stream line",
				slog.Any("error", &FormatParseWarning{Line: head + "...", Err: errLineTooLong}))
		case len(buf) > 0:
			if err := dec.line(strings.TrimSuffix(string(buf), "\n"), onFragment); err != nil {
				return err
			}
		}
		buf, oversized, head = buf[:0], false, ""

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return dec.finish(onFragment)
			}
			return readErr
		}
	}
}

func marker(line string) string {
	if i := strings.IndexByte(line, ':'); i >= 0 && i < 8 {
		return line[:i]
	}
	return ""
}
