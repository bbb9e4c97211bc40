package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// UTF-8 form of U+FFFD; decoders emit it for bytes they cannot map
var replacementChar = []byte("\uFFFD")

// lookupEncoding resolves a WHATWG/IANA encoding label such as "utf-8" or "latin1"
func lookupEncoding(name string) (encoding.Encoding, error) {
	label := strings.TrimSpace(name)
	if label == "" {
		return nil, fmt.Errorf("%w: empty encoding", ErrInvalidConfig)
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidConfig, name)
	}
	return enc, nil
}

// lineDecoder turns raw serial lines into text. Terminators are matched in their
// encoded form so that multi-byte encodings such as UTF-16 frame correctly.
type lineDecoder struct {
	name string
	enc  encoding.Encoding

	lf          []byte // encoded "\n"
	cr          []byte // encoded "\r"
	replacement []byte // encoded U+FFFD, nil when the encoding has none
	unit        int    // code unit width; terminators only match on unit boundaries
}

func newLineDecoder(name string) (*lineDecoder, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	lf, err := enc.NewEncoder().Bytes([]byte("\n"))
	if err != nil || len(lf) == 0 {
		return nil, fmt.Errorf("%w: encoding %q cannot represent a line feed", ErrInvalidConfig, name)
	}
	cr, err := enc.NewEncoder().Bytes([]byte("\r"))
	if err != nil || len(cr) != len(lf) {
		return nil, fmt.Errorf("%w: encoding %q cannot represent a carriage return", ErrInvalidConfig, name)
	}
	replacement, err := enc.NewEncoder().Bytes(replacementChar)
	if err != nil {
		replacement = nil
	}
	return &lineDecoder{
		name:        strings.TrimSpace(name),
		enc:         enc,
		lf:          lf,
		cr:          cr,
		replacement: replacement,
		unit:        len(lf),
	}, nil
}

// indexLF returns the end of the first complete line in buf (after its LF), or -1
func (d *lineDecoder) indexLF(buf []byte) int {
	for off := 0; off+d.unit <= len(buf); {
		i := bytes.Index(buf[off:], d.lf)
		if i < 0 {
			return -1
		}
		i += off
		if i%d.unit == 0 {
			return i + len(d.lf)
		}
		off = i + 1
	}
	return -1
}

// stripTerminators removes any trailing run of encoded CR and LF
func (d *lineDecoder) stripTerminators(raw []byte) []byte {
	for len(raw) >= d.unit && len(raw)%d.unit == 0 {
		switch {
		case bytes.HasSuffix(raw, d.lf):
			raw = raw[:len(raw)-d.unit]
		case bytes.HasSuffix(raw, d.cr):
			raw = raw[:len(raw)-d.unit]
		default:
			return raw
		}
	}
	return raw
}

// Decode strips the line terminator and decodes the rest. A line whose bytes do not
// belong to the encoding yields a *DecodeError.
func (d *lineDecoder) Decode(raw []byte) (string, error) {
	body := d.stripTerminators(raw)
	out, err := d.enc.NewDecoder().Bytes(body)
	if err != nil || (bytes.Contains(out, replacementChar) && !d.literalReplacement(body)) {
		return "", &DecodeError{Encoding: d.name, Raw: bytes.Clone(body), Guess: guessCharset(body)}
	}
	return string(out), nil
}

func (d *lineDecoder) literalReplacement(body []byte) bool {
	return d.replacement != nil && bytes.Contains(body, d.replacement)
}

// guessCharset asks chardet for the most likely charset; empty when it has no opinion
func guessCharset(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	res, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || res == nil {
		return ""
	}
	return res.Charset
}
