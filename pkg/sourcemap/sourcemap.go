package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Map is a version 3 source map as it appears on the wire. Preprocessors,
// esbuild and the component compiler all exchange maps in this shape.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse source map: %w", err)
	}
	return &m, nil
}

func (m *Map) JSON() []byte {
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		// Every field is a plain string or slice of strings
		panic("Internal error: " + err.Error())
	}
	return data
}

// ToURL returns the map as a base64 data URL suitable for a trailing
// "//# sourceMappingURL=" comment.
func (m *Map) ToURL() string {
	return "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(m.JSON())
}

// FromURL decodes a base64 JSON data URL like the ones ToURL returns
func FromURL(url string) (*Map, error) {
	rest, ok := strings.CutPrefix(url, "data:application/json")
	if !ok {
		return nil, fmt.Errorf("unsupported source map URL %q", truncate(url))
	}
	params, data, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(params, ";base64") {
		return nil, fmt.Errorf("unsupported source map URL %q", truncate(url))
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode source map URL: %w", err)
	}
	return Parse(decoded)
}

func truncate(text string) string {
	if len(text) > 40 {
		return text[:40] + "..."
	}
	return text
}

func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Sources = append([]string(nil), m.Sources...)
	clone.SourcesContent = append([]*string(nil), m.SourcesContent...)
	clone.Names = append([]string(nil), m.Names...)
	return &clone
}

type Mapping struct {
	GeneratedLine   int // 0-based
	GeneratedColumn int // 0-based count of UTF-16 code units

	SourceIndex    int // 0-based, -1 when the segment has no source
	OriginalLine   int // 0-based
	OriginalColumn int // 0-based count of UTF-16 code units
	OriginalName   int // 0-based, -1 when absent
}

func (m *Map) Decode() ([]Mapping, error) {
	return DecodeMappings(m.Mappings)
}

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// A single base 64 digit can contain 6 bits of data. For the base 64 variable
// length quantities we use in the source map spec, the first bit is the sign,
// the next four bits are the actual value, and the 6th bit is the continuation
// bit. The continuation bit tells us whether there are more digits in this
// value following this digit.
//
//	Continuation
//	|    Sign
//	|    |
//	V    V
//	101011
func encodeVLQ(encoded []byte, value int) []byte {
	var vlq int
	if value < 0 {
		vlq = ((-value) << 1) | 1
	} else {
		vlq = value << 1
	}

	for {
		digit := vlq & 31
		vlq >>= 5

		// If there are still more digits in this value, we must make sure the
		// continuation bit is marked
		if vlq != 0 {
			digit |= 32
		}

		encoded = append(encoded, base64Digits[digit])

		if vlq == 0 {
			break
		}
	}

	return encoded
}

// DecodeVLQ reads one value starting at "start". The boolean is false when
// the input ends early or contains a character outside the base 64 alphabet.
func DecodeVLQ(encoded string, start int) (int, int, bool) {
	shift := 0
	vlq := 0

	for {
		if start >= len(encoded) {
			return 0, start, false
		}
		index := strings.IndexByte(base64Digits, encoded[start])
		if index < 0 {
			return 0, start, false
		}

		// Decode a single byte
		vlq |= (index & 31) << shift
		start++
		shift += 5

		// Stop if there's no continuation bit
		if (index & 32) == 0 {
			break
		}
	}

	// Recover the value
	value := vlq >> 1
	if (vlq & 1) != 0 {
		value = -value
	}
	return value, start, true
}

func isSegmentEnd(mappings string, i int) bool {
	return i >= len(mappings) || mappings[i] == ',' || mappings[i] == ';'
}

func DecodeMappings(mappings string) ([]Mapping, error) {
	var result []Mapping
	var generatedLine, generatedColumn int
	var sourceIndex, originalLine, originalColumn, originalName int
	i := 0

	for i < len(mappings) {
		switch mappings[i] {
		case ';':
			generatedLine++
			generatedColumn = 0
			i++
			continue

		case ',':
			i++
			continue
		}

		var delta int
		var ok bool
		if delta, i, ok = DecodeVLQ(mappings, i); !ok {
			return nil, fmt.Errorf("invalid generated column at offset %d", i)
		}
		generatedColumn += delta
		mapping := Mapping{
			GeneratedLine:   generatedLine,
			GeneratedColumn: generatedColumn,
			SourceIndex:     -1,
			OriginalName:    -1,
		}

		if !isSegmentEnd(mappings, i) {
			var fields [3]int
			for f := range fields {
				if fields[f], i, ok = DecodeVLQ(mappings, i); !ok {
					return nil, fmt.Errorf("invalid original position at offset %d", i)
				}
			}
			sourceIndex += fields[0]
			originalLine += fields[1]
			originalColumn += fields[2]
			mapping.SourceIndex = sourceIndex
			mapping.OriginalLine = originalLine
			mapping.OriginalColumn = originalColumn

			if !isSegmentEnd(mappings, i) {
				if delta, i, ok = DecodeVLQ(mappings, i); !ok {
					return nil, fmt.Errorf("invalid name index at offset %d", i)
				}
				originalName += delta
				mapping.OriginalName = originalName
			}
		}

		if !isSegmentEnd(mappings, i) {
			return nil, fmt.Errorf("unexpected %q at offset %d", mappings[i], i)
		}
		result = append(result, mapping)
	}

	return result, nil
}

// EncodeMappings expects mappings ordered by increasing generated position.
func EncodeMappings(mappings []Mapping) string {
	var buffer []byte
	var prev Mapping
	prevName := 0
	lineHasSegment := false

	for _, m := range mappings {
		for prev.GeneratedLine < m.GeneratedLine {
			buffer = append(buffer, ';')
			prev.GeneratedLine++
			prev.GeneratedColumn = 0
			lineHasSegment = false
		}
		if lineHasSegment {
			buffer = append(buffer, ',')
		}
		lineHasSegment = true

		buffer = encodeVLQ(buffer, m.GeneratedColumn-prev.GeneratedColumn)
		prev.GeneratedColumn = m.GeneratedColumn
		if m.SourceIndex < 0 {
			continue
		}
		buffer = encodeVLQ(buffer, m.SourceIndex-prev.SourceIndex)
		buffer = encodeVLQ(buffer, m.OriginalLine-prev.OriginalLine)
		buffer = encodeVLQ(buffer, m.OriginalColumn-prev.OriginalColumn)
		prev.SourceIndex = m.SourceIndex
		prev.OriginalLine = m.OriginalLine
		prev.OriginalColumn = m.OriginalColumn
		if m.OriginalName >= 0 {
			buffer = encodeVLQ(buffer, m.OriginalName-prevName)
			prevName = m.OriginalName
		}
	}

	return string(buffer)
}

// Find returns the segment covering the generated position, or nil if the
// line has no segment at or before that column.
func Find(mappings []Mapping, line int, column int) *Mapping {
	// Binary search
	count := len(mappings)
	index := 0
	for count > 0 {
		step := count / 2
		i := index + step
		mapping := mappings[i]
		if mapping.GeneratedLine < line || (mapping.GeneratedLine == line && mapping.GeneratedColumn <= column) {
			index = i + 1
			count -= step + 1
		} else {
			count = step
		}
	}

	// Handle search failure
	if index > 0 {
		mapping := &mappings[index-1]

		// Match the behavior of the popular "source-map" library from Mozilla
		if mapping.GeneratedLine == line {
			return mapping
		}
	}
	return nil
}

type LineColumnOffset struct {
	Lines   int
	Columns int
}

func (a LineColumnOffset) Plus(b LineColumnOffset) LineColumnOffset {
	if b.Lines == 0 {
		return LineColumnOffset{Lines: a.Lines, Columns: a.Columns + b.Columns}
	}
	return LineColumnOffset{Lines: a.Lines + b.Lines, Columns: b.Columns}
}

func (offset *LineColumnOffset) AdvanceString(text string) {
	columns := offset.Columns
	for i, c := range text {
		switch c {
		case '\r', '\n', '\u2028', '\u2029':
			// Handle Windows-specific "\r\n" newlines
			if c == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				columns++
				continue
			}

			offset.Lines++
			columns = 0

		default:
			// Mozilla's "source-map" library counts columns using UTF-16 code units
			if c <= 0xFFFF {
				columns++
			} else {
				columns += 2
			}
		}
	}
	offset.Columns = columns
}
