package sourcemap

import (
	"path/filepath"
	"sort"
	"strings"
)

// Replacement swaps the bytes [Start, End) of a text for Text. When Map is
// set it maps Text back onto the replaced range, with positions relative to
// the start of that range.
type Replacement struct {
	Start int
	End   int
	Text  string
	Map   *Map
}

// Stitch applies the replacements (which must be sorted and must not overlap)
// and returns the new text together with a map back to "original". Source 0
// of the returned map is always "filename" itself. Unchanged text gets one
// segment per line. Block maps that fail to decode are dropped silently and
// the block is mapped as if it had no map.
func Stitch(original string, replacements []Replacement, filename string) (string, *Map) {
	text, m, _, _ := stitch(original, replacements, filename)
	return text, m
}

// Restitch is Stitch for an "original" that is itself the output of earlier
// replacements, mapped by "previous". The returned map points at the sources
// of "previous". Unchanged text carries every segment of "previous" along,
// not only the ones at the start of each line.
func Restitch(original string, replacements []Replacement, filename string, previous *Map) (string, *Map) {
	text, m, mappings, unchanged := stitch(original, replacements, filename)
	if previous == nil {
		return text, m
	}
	inner, err := previous.Decode()
	if err != nil {
		return text, m
	}
	return text, compose(m, mappings, unchanged, previous, inner)
}

// The returned flags mark the segments that cover unchanged text
func stitch(original string, replacements []Replacement, filename string) (string, *Map, []Mapping, []bool) {
	base := filepath.Base(filename)
	content := original
	result := &Map{
		Version:        3,
		File:           base,
		Sources:        []string{base},
		SourcesContent: []*string{&content},
	}
	sourceIndex := map[string]int{base: 0}

	var sb strings.Builder
	var mappings []Mapping
	generated := LineColumnOffset{}
	originalPos := LineColumnOffset{}
	prev := 0

	var identity []bool
	mark := func(unchanged bool) {
		for len(identity) < len(mappings) {
			identity = append(identity, unchanged)
		}
	}

	for _, r := range replacements {
		unchanged := original[prev:r.Start]
		mappings = appendIdentity(mappings, unchanged, generated, originalPos)
		mark(true)
		sb.WriteString(unchanged)
		generated.AdvanceString(unchanged)
		originalPos.AdvanceString(unchanged)

		mappings = appendReplacement(mappings, r, generated, originalPos, filename, result, sourceIndex)
		mark(false)
		sb.WriteString(r.Text)
		generated.AdvanceString(r.Text)
		originalPos.AdvanceString(original[r.Start:r.End])
		prev = r.End
	}

	tail := original[prev:]
	mappings = appendIdentity(mappings, tail, generated, originalPos)
	mark(true)
	sb.WriteString(tail)

	result.Mappings = EncodeMappings(mappings)
	return sb.String(), result, mappings, identity
}

func appendIdentity(mappings []Mapping, text string, generated LineColumnOffset, original LineColumnOffset) []Mapping {
	if text == "" {
		return mappings
	}
	mappings = append(mappings, Mapping{
		GeneratedLine:   generated.Lines,
		GeneratedColumn: generated.Columns,
		OriginalLine:    original.Lines,
		OriginalColumn:  original.Columns,
		OriginalName:    -1,
	})

	lines := 0
	for i, c := range text {
		switch c {
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				continue
			}
		case '\n', '\u2028', '\u2029':
		default:
			continue
		}
		lines++

		// Nothing left on this line to map
		if next := i + len(string(c)); next >= len(text) {
			break
		}
		mappings = append(mappings, Mapping{
			GeneratedLine: generated.Lines + lines,
			OriginalLine:  original.Lines + lines,
			OriginalName:  -1,
		})
	}
	return mappings
}

func appendReplacement(
	mappings []Mapping, r Replacement, generated LineColumnOffset, original LineColumnOffset,
	filename string, result *Map, sourceIndex map[string]int,
) []Mapping {
	if r.Text == "" {
		return mappings
	}

	var block []Mapping
	if r.Map != nil {
		if decoded, err := r.Map.Decode(); err == nil {
			block = decoded
		}
	}

	// Anchor the start of the replacement to the start of the replaced range
	// unless the block map already has a segment there
	if len(block) == 0 || block[0].GeneratedLine != 0 || block[0].GeneratedColumn != 0 {
		mappings = append(mappings, Mapping{
			GeneratedLine:   generated.Lines,
			GeneratedColumn: generated.Columns,
			OriginalLine:    original.Lines,
			OriginalColumn:  original.Columns,
			OriginalName:    -1,
		})
	}

	if block == nil {
		// Without a map every generated line points at the replaced range
		end := generated
		end.AdvanceString(r.Text)
		for line := generated.Lines + 1; line <= end.Lines; line++ {
			if line == end.Lines && end.Columns == 0 {
				break
			}
			mappings = append(mappings, Mapping{
				GeneratedLine:  line,
				OriginalLine:   original.Lines,
				OriginalColumn: original.Columns,
				OriginalName:   -1,
			})
		}
		return mappings
	}

	base := filepath.Base(filename)
	for _, m := range block {
		if m.SourceIndex < 0 || m.SourceIndex >= len(r.Map.Sources) {
			continue
		}
		gen := generated.Plus(LineColumnOffset{Lines: m.GeneratedLine, Columns: m.GeneratedColumn})
		mapping := Mapping{
			GeneratedLine:   gen.Lines,
			GeneratedColumn: gen.Columns,
			OriginalLine:    m.OriginalLine,
			OriginalColumn:  m.OriginalColumn,
			OriginalName:    -1,
		}

		source := r.Map.Sources[m.SourceIndex]
		if source == base || source == filename || source == filepath.ToSlash(filename) {
			orig := original.Plus(LineColumnOffset{Lines: m.OriginalLine, Columns: m.OriginalColumn})
			mapping.OriginalLine = orig.Lines
			mapping.OriginalColumn = orig.Columns
		} else {
			index, ok := sourceIndex[source]
			if !ok {
				index = len(result.Sources)
				sourceIndex[source] = index
				result.Sources = append(result.Sources, source)
				var content *string
				if m.SourceIndex < len(r.Map.SourcesContent) {
					content = r.Map.SourcesContent[m.SourceIndex]
				}
				result.SourcesContent = append(result.SourcesContent, content)
			}
			mapping.SourceIndex = index
		}
		mappings = append(mappings, mapping)
	}
	return mappings
}

// Compose chains two maps: "outer" maps generated code onto an intermediate
// text whose own map is "inner". Segments of "outer" that point at source 0
// are routed through "inner". Other sources of "outer" are kept as they are.
// Returns nil if either map fails to decode.
func Compose(outer *Map, inner *Map) *Map {
	if outer == nil {
		return inner
	}
	if inner == nil {
		return outer
	}
	outerMappings, err := outer.Decode()
	if err != nil {
		return nil
	}
	innerMappings, err := inner.Decode()
	if err != nil {
		return nil
	}
	return compose(outer, outerMappings, nil, inner, innerMappings)
}

// Segments of "outer" flagged in "unchanged" map text that is identical to
// the intermediate text, so every segment of "inner" they span is kept.
func compose(outer *Map, outerMappings []Mapping, unchanged []bool, inner *Map, innerMappings []Mapping) *Map {
	result := &Map{
		Version:        3,
		File:           outer.File,
		Sources:        append([]string(nil), inner.Sources...),
		SourcesContent: append([]*string(nil), inner.SourcesContent...),
	}
	for len(result.SourcesContent) < len(result.Sources) {
		result.SourcesContent = append(result.SourcesContent, nil)
	}
	sourceIndex := make(map[string]int, len(result.Sources))
	for i, source := range result.Sources {
		sourceIndex[source] = i
	}

	var mappings []Mapping
	for k, m := range outerMappings {
		if m.SourceIndex < 0 || m.SourceIndex >= len(outer.Sources) {
			continue
		}
		mapping := Mapping{
			GeneratedLine:   m.GeneratedLine,
			GeneratedColumn: m.GeneratedColumn,
			OriginalName:    -1,
		}

		if m.SourceIndex == 0 {
			found := Find(innerMappings, m.OriginalLine, m.OriginalColumn)
			if found != nil && found.SourceIndex >= 0 {
				mapping.SourceIndex = found.SourceIndex
				mapping.OriginalLine = found.OriginalLine
				mapping.OriginalColumn = found.OriginalColumn
				mappings = append(mappings, mapping)
			}
			if k < len(unchanged) && unchanged[k] {
				end := -1
				if k+1 < len(outerMappings) && outerMappings[k+1].GeneratedLine == m.GeneratedLine {
					end = outerMappings[k+1].GeneratedColumn
				}
				mappings = appendShifted(mappings, innerMappings, m, end)
			}
			continue
		}

		source := outer.Sources[m.SourceIndex]
		index, ok := sourceIndex[source]
		if !ok {
			index = len(result.Sources)
			sourceIndex[source] = index
			result.Sources = append(result.Sources, source)
			var content *string
			if m.SourceIndex < len(outer.SourcesContent) {
				content = outer.SourcesContent[m.SourceIndex]
			}
			result.SourcesContent = append(result.SourcesContent, content)
		}
		mapping.SourceIndex = index
		mapping.OriginalLine = m.OriginalLine
		mapping.OriginalColumn = m.OriginalColumn
		mappings = append(mappings, mapping)
	}

	result.Mappings = EncodeMappings(mappings)
	return result
}

// appendShifted copies the segments of "inner" that follow the intermediate
// position of "at" on the same line, moved to the generated position of "at".
// A non-negative "end" is the generated column where the span of "at" stops.
func appendShifted(mappings []Mapping, inner []Mapping, at Mapping, end int) []Mapping {
	start := sort.Search(len(inner), func(i int) bool {
		return inner[i].GeneratedLine > at.OriginalLine ||
			(inner[i].GeneratedLine == at.OriginalLine && inner[i].GeneratedColumn > at.OriginalColumn)
	})
	for _, segment := range inner[start:] {
		if segment.GeneratedLine != at.OriginalLine {
			break
		}
		column := segment.GeneratedColumn - at.OriginalColumn + at.GeneratedColumn
		if end >= 0 && column >= end {
			break
		}
		segment.GeneratedLine = at.GeneratedLine
		segment.GeneratedColumn = column
		segment.OriginalName = -1
		mappings = append(mappings, segment)
	}
	return mappings
}
