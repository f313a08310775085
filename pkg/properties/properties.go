// Package properties implements the discovery advertisement payload codec.
//
// A Properties value is a flat string-keyed map carrying the stream identity,
// the chosen transport strategy, the sender address, and an opaque codec
// description. The wire shape is the DNS TXT record format: each entry is a
// single length-prefixed "key=value" string, which lets the same payload
// travel either as raw bytes or as mDNS TXT records without translation.
package properties

import (
	"sort"
	"strings"
)

// Properties is the advertisement payload. Keys are unique; iteration order
// carries no meaning.
type Properties map[string]string

// Canonical keys used by the SDK facade. Values are free-form strings; the
// codec description is opaque to this layer.
const (
	KeyID       = "id"
	KeyPort     = "port"
	KeyStrategy = "strategy"
	KeyAddress  = "address"
	KeyCodec    = "codec"
)

// MaxEntrySize is the largest encodable "key=value" entry (1-byte length
// prefix on the wire, as in DNS TXT character-strings).
const MaxEntrySize = 255

// Encode serializes the map to wire bytes. Entries are emitted in sorted key
// order so encoding is deterministic, though decoders must not rely on order.
// Entries that exceed MaxEntrySize are truncated at the value.
func Encode(p Properties) []byte {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		entry := k + "=" + p[k]
		if len(entry) > MaxEntrySize {
			entry = entry[:MaxEntrySize]
		}
		buf = append(buf, byte(len(entry)))
		buf = append(buf, entry...)
	}
	return buf
}

// Decode parses wire bytes produced by Encode (or received as concatenated
// TXT character-strings). It fails with ErrMalformed on truncated input,
// zero-length entries, or entries without a key/value separator.
func Decode(data []byte) (Properties, error) {
	p := make(Properties)
	for len(data) > 0 {
		n := int(data[0])
		data = data[1:]
		if n == 0 || n > len(data) {
			return nil, ErrMalformed
		}
		entry := string(data[:n])
		data = data[n:]

		idx := strings.IndexByte(entry, '=')
		if idx <= 0 {
			return nil, ErrMalformed
		}
		p[entry[:idx]] = entry[idx+1:]
	}
	return p, nil
}

// ToTXT converts the map to DNS-SD TXT strings for mDNS registration.
func ToTXT(p Properties) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	txt := make([]string, 0, len(keys))
	for _, k := range keys {
		txt = append(txt, k+"="+p[k])
	}
	return txt
}

// FromTXT parses DNS-SD TXT strings into a map. Records without a separator
// are skipped; resolvers routinely see foreign records and must not fail on
// them.
func FromTXT(records []string) Properties {
	p := make(Properties)
	for _, record := range records {
		if idx := strings.IndexByte(record, '='); idx > 0 {
			p[record[:idx]] = record[idx+1:]
		}
	}
	return p
}

// Equal reports whether two property maps hold the same entries.
func Equal(a, b Properties) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
