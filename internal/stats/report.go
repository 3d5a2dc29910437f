package stats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// Files without a named package are grouped under this name
const UnknownPackage = "$unknown"

type Group struct {
	Name     string
	Files    int
	Duration time.Duration
}

type Resolver interface {
	Resolve(filename string) string
}

// GroupStats sums the compile time of every file per owning package. Files
// whose PackageName is still empty are resolved with "resolver" first.
func GroupStats(files []*FileStat, resolver Resolver) []Group {
	groups := make(map[string]*Group)
	for _, file := range files {
		name := file.PackageName
		if name == "" && resolver != nil {
			name = resolver.Resolve(file.Filename)
			file.PackageName = name
		}
		if name == "" {
			name = UnknownPackage
		}

		group, ok := groups[name]
		if !ok {
			group = &Group{Name: name}
			groups[name] = group
		}
		group.Files++
		group.Duration += Duration(file.Timestamps(), Compiled)
	}

	result := make([]Group, 0, len(groups))
	for _, group := range groups {
		result = append(result, *group)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Files != result[j].Files {
			return result[i].Files > result[j].Files
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// FormatReport renders the groups as a table. The name column is padded on
// the right, the numeric columns on the left, and cells are separated by tabs.
func FormatReport(groups []Group) string {
	rows := [][]string{{"library", "files", "time", "avg"}}
	for _, group := range groups {
		avg := time.Duration(0)
		if group.Files > 0 {
			avg = group.Duration / time.Duration(group.Files)
		}
		rows = append(rows, []string{
			group.Name,
			strconv.Itoa(group.Files),
			HumanDuration(group.Duration),
			HumanDuration(avg),
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, len(rows))
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == 0 {
				cells[i] = runewidth.FillRight(cell, widths[i])
			} else {
				cells[i] = runewidth.FillLeft(cell, widths[i])
			}
		}
		lines[r] = strings.Join(cells, "\t")
	}
	return strings.Join(lines, "\n")
}

func HumanDuration(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	if ms < 100 {
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}
