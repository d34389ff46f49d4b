// Package canonicalize implements the canonical JSON serialization used to
// compute the snapshot hash of an exported system version (spec: deterministic
// export pipeline). It follows RFC 8785 (JSON Canonicalization Scheme) in
// spirit: object keys sorted lexicographically at every nesting level, no
// insignificant whitespace, and ASCII-only output with \uXXXX escapes for
// anything outside the printable ASCII range.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// JCS returns the canonical JSON byte representation of v.
//
// v is first marshaled with the standard library (so struct tags, omitempty,
// etc. behave normally), then decoded into a generic interface{} tree with
// json.Number preserved, then re-serialized recursively with sorted keys and
// ASCII-only escaping.
func JCS(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JCSString returns the canonical JSON form as a string.
func JCSString(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Hash returns the lowercase hex SHA-256 digest of v's canonical JSON form.
// This is the snapshot_hash function referenced throughout the export
// pipeline: two values with the same canonical form always hash identically.
func Hash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	case string:
		writeCanonicalString(buf, t)
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("canonicalize: unsupported type %T", v)
	}
}

const hexDigits = "0123456789abcdef"

// writeCanonicalString writes s as a JSON string literal using only ASCII
// bytes 0x20-0x7E unescaped; everything else (including the mandatory JSON
// escapes and all non-ASCII runes) is emitted as \uXXXX, with surrogate
// pairs for runes above the Basic Multilingual Plane. s is first normalized
// to NFC so the same text entered via different compositions (e.g. an
// evidence title typed on different operating systems) always canonicalizes
// and hashes identically.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
			continue
		case '\\':
			buf.WriteString(`\\`)
			continue
		case '\b':
			buf.WriteString(`\b`)
			continue
		case '\f':
			buf.WriteString(`\f`)
			continue
		case '\n':
			buf.WriteString(`\n`)
			continue
		case '\r':
			buf.WriteString(`\r`)
			continue
		case '\t':
			buf.WriteString(`\t`)
			continue
		}

		if r >= 0x20 && r <= 0x7E {
			buf.WriteRune(r)
			continue
		}

		if r > 0xFFFF {
			r -= 0x10000
			hi := 0xD800 + (r >> 10)
			lo := 0xDC00 + (r & 0x3FF)
			writeUEscape(buf, uint16(hi))
			writeUEscape(buf, uint16(lo))
			continue
		}
		writeUEscape(buf, uint16(r))
	}
	buf.WriteByte('"')
}

func writeUEscape(buf *bytes.Buffer, v uint16) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(v>>12)&0xF])
	buf.WriteByte(hexDigits[(v>>8)&0xF])
	buf.WriteByte(hexDigits[(v>>4)&0xF])
	buf.WriteByte(hexDigits[v&0xF])
}
