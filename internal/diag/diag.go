// Package diag converts compile failures into esbuild messages, so they are
// reported against the component file like any other build error.
package diag

import (
	"errors"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/evanw/svelte-prebundle/pkg/compiler"
	"github.com/evanw/svelte-prebundle/pkg/preprocess"
)

const pluginName = "vite-plugin-svelte:optimize-svelte"

func Message(err error, filename string) api.Message {
	msg := api.Message{
		PluginName: pluginName,
		Text:       err.Error(),
		Detail:     err,
	}

	var compileErr *compiler.Error
	if errors.As(err, &compileErr) {
		msg.Text = compileErr.Message
		if compileErr.Code != "" {
			msg.ID = compileErr.Code
		}
		file := compileErr.Filename
		if file == "" {
			file = filename
		}
		if compileErr.Start != nil {
			msg.Location = location(file, compileErr.Start, compileErr.End, compileErr.Frame)
		}
		if compileErr.Frame != "" {
			msg.Notes = append(msg.Notes, api.Note{Text: compileErr.Frame})
		}
		return msg
	}

	var transformErr *preprocess.TransformError
	if errors.As(err, &transformErr) && len(transformErr.Messages) > 0 {
		// Point at the first failing line of the block. The line is relative
		// to the block, not to the component.
		first := transformErr.Messages[0]
		if first.Location != nil {
			loc := *first.Location
			loc.File = filename
			msg.Location = &loc
		}
	}

	if msg.Location == nil {
		msg.Location = &api.Location{File: filename}
	}
	return msg
}

// Warning converts a compiler warning. Warnings carry no code frame, so the
// location has no line text.
func Warning(warning compiler.Warning, filename string) api.Message {
	msg := api.Message{
		PluginName: pluginName,
		ID:         warning.Code,
		Text:       warning.Message,
		Location:   &api.Location{File: filename},
	}
	if warning.Start != nil {
		msg.Location.Line = warning.Start.Line
		msg.Location.Column = warning.Start.Column
	}
	return msg
}

func location(file string, start *compiler.Position, end *compiler.Position, frame string) *api.Location {
	loc := &api.Location{
		File:   file,
		Line:   start.Line,
		Column: start.Column,
	}
	if end != nil && end.Line == start.Line && end.Column > start.Column {
		loc.Length = end.Column - start.Column
	}

	// Recover the text of the failing line from the code frame, whose lines
	// look like "12: <code>"
	for _, line := range strings.Split(frame, "\n") {
		number, text, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(number) == strconv.Itoa(start.Line) {
			loc.LineText = strings.TrimPrefix(text, " ")
			break
		}
	}
	return loc
}
