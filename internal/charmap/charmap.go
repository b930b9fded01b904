// Package charmap provides the replaceable character-mapping objects that sit
// between story text (always UTF-8 inside the VM) and the host's character
// set, for display text and for filenames.
package charmap

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	xcharmap "golang.org/x/text/encoding/charmap"
)

// Mapper transcodes between UTF-8 and a host character set. Characters the
// host set cannot represent are replaced, never dropped silently.
type Mapper interface {
	Name() string
	ToHost(s string) string
	FromHost(s string) string
}

type utf8Mapper struct{}

func (utf8Mapper) Name() string             { return "utf-8" }
func (utf8Mapper) ToHost(s string) string   { return s }
func (utf8Mapper) FromHost(s string) string { return s }

// UTF8 is the identity mapping.
var UTF8 Mapper = utf8Mapper{}

type tableMapper struct {
	name string
	enc  encoding.Encoding
}

func (m *tableMapper) Name() string { return m.name }

func (m *tableMapper) ToHost(s string) string {
	out, err := encoding.ReplaceUnsupported(m.enc.NewEncoder()).String(s)
	if err != nil {
		return s
	}
	return out
}

func (m *tableMapper) FromHost(s string) string {
	out, err := m.enc.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

var tables = map[string]encoding.Encoding{
	"iso-8859-1":   xcharmap.ISO8859_1,
	"iso-8859-2":   xcharmap.ISO8859_2,
	"iso-8859-5":   xcharmap.ISO8859_5,
	"iso-8859-7":   xcharmap.ISO8859_7,
	"iso-8859-15":  xcharmap.ISO8859_15,
	"windows-1250": xcharmap.Windows1250,
	"windows-1251": xcharmap.Windows1251,
	"windows-1252": xcharmap.Windows1252,
	"cp437":        xcharmap.CodePage437,
	"cp850":        xcharmap.CodePage850,
	"koi8-r":       xcharmap.KOI8R,
	"macintosh":    xcharmap.Macintosh,
}

var aliases = map[string]string{
	"utf8":    "utf-8",
	"latin1":  "iso-8859-1",
	"latin-1": "iso-8859-1",
	"latin2":  "iso-8859-2",
	"latin9":  "iso-8859-15",
	"cp1250":  "windows-1250",
	"cp1251":  "windows-1251",
	"cp1252":  "windows-1252",
	"ibm437":  "cp437",
	"ibm850":  "cp850",
	"mac":     "macintosh",
	"ascii":   "iso-8859-1",
}

// Lookup returns the mapping for a character-set name. Names are matched
// case-insensitively; the empty name means UTF-8.
func Lookup(name string) (Mapper, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[key]; ok {
		key = a
	}
	if key == "" || key == "utf-8" {
		return UTF8, nil
	}
	enc, ok := tables[key]
	if !ok {
		return nil, fmt.Errorf("unknown character set %q", name)
	}
	return &tableMapper{name: key, enc: enc}, nil
}

// Names lists the canonical character-set names Lookup accepts.
func Names() []string {
	out := []string{"utf-8"}
	for n := range tables {
		out = append(out, n)
	}
	sort.Strings(out[1:])
	return out
}
