package dbf

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// DefaultEncoding is used when neither the caller, a .cpg side-car nor the
// language driver byte names an encoding.
const DefaultEncoding = "ISO-8859-1"

// languageDrivers maps the dBase language driver id (header byte 29) to a
// character set. Only the common ids are listed.
var languageDrivers = map[byte]encoding.Encoding{
	0x01: charmap.CodePage437,
	0x02: charmap.CodePage850,
	0x03: charmap.Windows1252,
	0x57: charmap.Windows1252,
	0x58: charmap.Windows1252,
	0x59: charmap.Windows1252,
	0x64: charmap.CodePage852,
	0x65: charmap.CodePage866,
	0x66: charmap.CodePage865,
	0x78: charmap.Windows1250,
	0x79: charmap.Windows1251,
	0x7A: charmap.Windows1253,
	0xC8: charmap.Windows1250,
	0xC9: charmap.Windows1251,
	0xCA: charmap.Windows1254,
	0xCB: charmap.Windows1253,
}

// LookupEncoding resolves an IANA charset name such as "UTF-8",
// "ISO-8859-1" or "windows-1252".
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "UTF-8", "UTF8":
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("lookup encoding %q: %w: %w", name, storeerr.ErrUnknownEncoding, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("lookup encoding %q: %w", name, storeerr.ErrUnknownEncoding)
	}
	return enc, nil
}

// readCPG returns the charset named in a .cpg side-car, or "" if there is none.
func readCPG(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	name := strings.TrimSpace(string(data))
	// ESRI tools write bare code page numbers.
	switch name {
	case "65001":
		return "UTF-8"
	case "1252":
		return "windows-1252"
	case "88591":
		return "ISO-8859-1"
	}
	return name
}

// resolveEncoding applies the lookup order: explicit name, .cpg side-car,
// language driver byte, DefaultEncoding.
func resolveEncoding(explicit, cpgPath string, ldid byte) (encoding.Encoding, string, error) {
	if explicit != "" {
		enc, err := LookupEncoding(explicit)
		return enc, explicit, err
	}
	if name := readCPG(cpgPath); name != "" {
		if enc, err := LookupEncoding(name); err == nil {
			return enc, name, nil
		}
	}
	if enc, ok := languageDrivers[ldid]; ok {
		name, _ := ianaindex.IANA.Name(enc)
		return enc, name, nil
	}
	enc, err := LookupEncoding(DefaultEncoding)
	return enc, DefaultEncoding, err
}
