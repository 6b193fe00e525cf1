// Package datalog decodes uploaded datalog exports into a dyno.Table.
//
// Tuning suites disagree on nearly everything about their CSV exports: some
// write a UTF-8 BOM, Windows tools emit UTF-16 or Windows-1252 (the degree
// sign in "IAT (°F)" is the usual casualty), and European locales use
// semicolons because the comma is their decimal separator. In files not
// delimited by commas, numeric cells written with a decimal comma are
// rewritten with a point so the ingestor can parse them.
package datalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/banshee-data/dyno.report/internal/dyno"
)

// ErrNoHeader is returned when the input has no row that looks like a header.
var ErrNoHeader = errors.New("datalog: no header row found")

// Encoding names reported in Format.
const (
	EncodingUTF8        = "utf-8"
	EncodingUTF16LE     = "utf-16le"
	EncodingUTF16BE     = "utf-16be"
	EncodingWindows1252 = "windows-1252"
)

// Format describes what Decode detected.
type Format struct {
	Encoding  string `json:"encoding"`
	Delimiter string `json:"delimiter"`
	// PreambleLines counts metadata lines skipped before the header.
	PreambleLines int `json:"preamble_lines,omitempty"`
	// DecimalComma is set when data cells used a comma as decimal separator.
	DecimalComma bool `json:"decimal_comma,omitempty"`
}

var delimiters = []rune{',', ';', '\t'}

// sniffLines bounds how far into the file delimiter sniffing looks.
const sniffLines = 10

// Decode reads a whole datalog. Blank lines are dropped; ragged rows are kept
// as-is for the ingestor to reject. Leading lines with fewer than two fields
// are treated as a metadata preamble.
func Decode(r io.Reader) (dyno.Table, Format, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return dyno.Table{}, Format{}, fmt.Errorf("failed to read datalog: %w", err)
	}
	return DecodeBytes(raw)
}

// DecodeFile opens and decodes a datalog from disk.
func DecodeFile(path string) (dyno.Table, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return dyno.Table{}, Format{}, fmt.Errorf("failed to open datalog: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(raw []byte) (dyno.Table, Format, error) {
	text, enc, err := toUTF8(raw)
	if err != nil {
		return dyno.Table{}, Format{}, err
	}
	format := Format{Encoding: enc}

	delim := sniffDelimiter(text)
	format.Delimiter = string(delim)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var table dyno.Table
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return dyno.Table{}, format, fmt.Errorf("failed to parse datalog: %w", err)
		}
		if isBlank(record) {
			continue
		}
		if table.Header == nil {
			if len(record) < 2 {
				format.PreambleLines++
				continue
			}
			table.Header = trimAll(record)
			continue
		}
		if delim != ',' {
			for i, cell := range record {
				if v, ok := fromDecimalComma(cell); ok {
					record[i] = v
					format.DecimalComma = true
				}
			}
		}
		table.Rows = append(table.Rows, record)
	}

	if table.Header == nil {
		return dyno.Table{}, format, ErrNoHeader
	}
	return table, format, nil
}

// toUTF8 strips byte order marks and converts UTF-16 and Windows-1252 input.
// Input that is already valid UTF-8 is returned unchanged.
func toUTF8(raw []byte) (string, string, error) {
	var dec *encoding.Decoder
	var name string
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return string(raw[3:]), EncodingUTF8, nil
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		dec = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		name = EncodingUTF16LE
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		dec = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		name = EncodingUTF16BE
	case utf8.Valid(raw):
		return string(raw), EncodingUTF8, nil
	default:
		dec = charmap.Windows1252.NewDecoder()
		name = EncodingWindows1252
	}

	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", name, fmt.Errorf("failed to decode %s datalog: %w", name, err)
	}
	return string(out), name, nil
}

// sniffDelimiter picks the candidate that splits the most fields out of any
// of the first few non-blank lines, ignoring anything inside double quotes.
// Ties and single-column input fall back to a comma.
func sniffDelimiter(text string) rune {
	best, bestCount := ',', 0
	seen := 0
	for line := range strings.Lines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		for _, d := range delimiters {
			if n := countOutsideQuotes(line, d); n > bestCount {
				best, bestCount = d, n
			}
		}
		seen++
		if seen == sniffLines {
			break
		}
	}
	return best
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	quoted := false
	for _, c := range line {
		switch {
		case c == '"':
			quoted = !quoted
		case c == d && !quoted:
			n++
		}
	}
	return n
}

// fromDecimalComma rewrites a number such as "0,55" or "-12,4%" with a
// decimal point. Cells that are not a single-comma number are left alone.
func fromDecimalComma(cell string) (string, bool) {
	text := strings.TrimSpace(cell)
	if strings.Count(text, ",") != 1 || strings.Contains(text, ".") {
		return cell, false
	}
	converted := strings.Replace(text, ",", ".", 1)
	if _, err := strconv.ParseFloat(strings.TrimSuffix(converted, "%"), 64); err != nil {
		return cell, false
	}
	return converted, true
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func trimAll(record []string) []string {
	out := make([]string, len(record))
	for i, f := range record {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
