package preprocess

import (
	"context"
	"regexp"
	"strings"

	"github.com/evanw/svelte-prebundle/pkg/sourcemap"
)

type Result struct {
	Code         string
	Map          *sourcemap.Map
	Dependencies []string
}

var (
	scriptBlock = blockPattern("script")
	styleBlock  = blockPattern("style")

	attributePattern = regexp.MustCompile(`([^\s=]+)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'=<>` + "`" + `]+)))?`)
)

// Comments are matched too so that blocks inside them can be skipped
func blockPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<!--.*?-->|<` + tag + `(\s.*?)?(?:>(.*?)</` + tag + `\s*>|/>)`)
}

// Run applies the groups to a whole component in order. Within a group all
// script blocks are processed before all style blocks. The returned map is
// nil when nothing changed.
func Run(ctx context.Context, code string, groups []Group, filename string) (*Result, error) {
	result := &Result{Code: code}
	seen := make(map[string]bool)

	for _, group := range groups {
		stages := []struct {
			pattern *regexp.Regexp
			hook    Hook
		}{
			{scriptBlock, group.Script},
			{styleBlock, group.Style},
		}

		for _, stage := range stages {
			if stage.hook == nil {
				continue
			}
			next, m, dependencies, err := runStage(ctx, result.Code, result.Map, stage.pattern, stage.hook, filename)
			if err != nil {
				return nil, err
			}
			if m != nil {
				result.Code = next
				result.Map = m
			}
			for _, dep := range dependencies {
				if !seen[dep] {
					seen[dep] = true
					result.Dependencies = append(result.Dependencies, dep)
				}
			}
		}
	}

	return result, nil
}

// runStage returns a map back to the original component, chained through
// "previous" when earlier stages already rewrote the code.
func runStage(ctx context.Context, code string, previous *sourcemap.Map, pattern *regexp.Regexp, hook Hook, filename string) (string, *sourcemap.Map, []string, error) {
	var replacements []sourcemap.Replacement
	var dependencies []string

	for _, match := range pattern.FindAllStringSubmatchIndex(code, -1) {
		// Skip comments and self-closing tags
		if strings.HasPrefix(code[match[0]:], "<!--") || match[4] < 0 {
			continue
		}

		var attributes Attributes
		if match[2] >= 0 {
			attributes = parseAttributes(code[match[2]:match[3]])
		} else {
			attributes = Attributes{}
		}

		processed, err := hook(ctx, Block{
			Content:    code[match[4]:match[5]],
			Attributes: attributes,
			Filename:   filename,
		})
		if err != nil {
			return "", nil, nil, err
		}
		if processed == nil {
			continue
		}

		if processed.Attributes != nil {
			start, end := match[2], match[3]
			if start < 0 {
				// "<script>" has no attributes, so insert right before the ">"
				start = match[4] - 1
				end = start
			}
			replacements = append(replacements, sourcemap.Replacement{
				Start: start,
				End:   end,
				Text:  processed.Attributes.String(),
			})
		}
		replacements = append(replacements, sourcemap.Replacement{
			Start: match[4],
			End:   match[5],
			Text:  processed.Code,
			Map:   processed.Map,
		})
		dependencies = append(dependencies, processed.Dependencies...)
	}

	if len(replacements) == 0 {
		return code, nil, dependencies, nil
	}
	next, m := sourcemap.Restitch(code, replacements, filename, previous)
	return next, m, dependencies, nil
}

func parseAttributes(text string) Attributes {
	attributes := Attributes{}
	for _, match := range attributePattern.FindAllStringSubmatch(text, -1) {
		value := match[2]
		if value == "" {
			value = match[3]
		}
		if value == "" {
			value = match[4]
		}
		attributes[match[1]] = value
	}
	return attributes
}
