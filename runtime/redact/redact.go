// Package redact hides secret values in the diagnostic stream of a run.
//
// Values loaded from a .env file whose names look sensitive (passwords,
// tokens, keys) are replaced by a placeholder in everything seeed writes to
// stderr: status lines, debug logs and error reports. Script stdout is left
// untouched.
package redact

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/seeed-sh/seeed/core/invariant"
)

const (
	// minSecretLen is the shortest value worth redacting; shorter values
	// would mangle ordinary output.
	minSecretLen = 4
	// minEncodedLen is the shortest value whose hex and base64 forms are
	// redacted too. Encodings of shorter values are common short strings.
	minEncodedLen = 8
)

var sensitiveName = regexp.MustCompile(`(?i)(pass(word|wd)?|secret|token|api_?key|private_?key|credential|auth)`)

// Sensitive reports whether a variable name suggests a secret value.
func Sensitive(name string) bool {
	return sensitiveName.MatchString(name)
}

type entry struct {
	value       []byte
	placeholder []byte
}

// Writer redacts registered secrets line by line. A line is written once its
// newline arrives; Close flushes a trailing partial line.
type Writer struct {
	out io.Writer
	key []byte

	mu      sync.Mutex
	entries []entry // longest first
	buf     []byte
}

// New creates a redacting writer in front of out.
func New(out io.Writer) *Writer {
	invariant.NotNil(out, "writer")

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("failed to generate redaction key: %v", err))
	}
	return &Writer{out: out, key: key}
}

// Add registers value under name. The raw value and its URL escapings are
// replaced by "<redacted:NAME>"; so are its hex and base64 forms once the
// value is at least minEncodedLen bytes.
func (w *Writer) Add(name, value string) {
	invariant.Precondition(name != "", "secret name cannot be empty")
	if len(value) < minSecretLen {
		return
	}

	placeholder := []byte("<redacted:" + name + ">")
	raw := []byte(value)
	variants := [][]byte{
		raw,
		[]byte(url.QueryEscape(value)),
		[]byte(url.PathEscape(value)),
	}
	if len(value) >= minEncodedLen {
		variants = append(variants,
			[]byte(hex.EncodeToString(raw)),
			bytes.ToUpper([]byte(hex.EncodeToString(raw))),
			[]byte(base64.StdEncoding.EncodeToString(raw)),
			[]byte(base64.RawStdEncoding.EncodeToString(raw)),
			[]byte(base64.URLEncoding.EncodeToString(raw)),
		)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, v := range variants {
		w.entries = append(w.entries, entry{value: v, placeholder: placeholder})
	}
	sort.SliceStable(w.entries, func(i, j int) bool {
		return len(w.entries[i].value) > len(w.entries[j].value)
	})
}

// AddSensitive registers every variable of vars whose name is Sensitive and
// returns the registered names, sorted.
func (w *Writer) AddSensitive(vars map[string]string) []string {
	var names []string
	for name, value := range vars {
		if Sensitive(name) && len(value) >= minSecretLen {
			w.Add(name, value)
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Fingerprint returns a keyed BLAKE2b digest of value, stable within one
// Writer and unrelated across runs. It lets debug output say which secret was
// registered without revealing it.
func (w *Writer) Fingerprint(value string) string {
	h, err := blake2b.New256(w.key)
	if err != nil {
		panic(fmt.Sprintf("failed to create BLAKE2b hash: %v", err))
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.entries) == 0 && len(w.buf) == 0 {
		return w.out.Write(p)
	}

	w.buf = append(w.buf, p...)
	end := bytes.LastIndexByte(w.buf, '\n')
	if end < 0 {
		return len(p), nil
	}

	complete := w.redact(w.buf[:end+1])
	w.buf = append(w.buf[:0], w.buf[end+1:]...)
	if _, err := w.out.Write(complete); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close flushes any buffered partial line. The underlying writer is not closed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) == 0 {
		return nil
	}
	rest := w.redact(w.buf)
	w.buf = w.buf[:0]
	_, err := w.out.Write(rest)
	return err
}

func (w *Writer) redact(p []byte) []byte {
	out := append([]byte(nil), p...)
	for _, e := range w.entries {
		out = bytes.ReplaceAll(out, e.value, e.placeholder)
	}
	return out
}
