package compiler

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/evanw/svelte-prebundle/pkg/sourcemap"
)

//go:embed bridge/compile.cjs
var bridgeScript string

type NodeOptions struct {
	// Node is the node executable. Defaults to "node" on the PATH.
	Node string

	// Root is the directory the compiler package is resolved from
	Root string

	// Timeout bounds a single compile. Zero means 30 seconds.
	Timeout time.Duration
}

// Node compiles components by running the project's own compiler in a node
// subprocess, one process per file.
type Node struct {
	nodePath string
	root     string
	timeout  time.Duration

	versionOnce sync.Once
	version     string
}

func NewNode(options NodeOptions) (*Node, error) {
	name := options.Node
	if name == "" {
		name = "node"
	}
	nodePath, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("node executable not found: %w", err)
	}
	timeout := options.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Node{nodePath: nodePath, root: options.Root, timeout: timeout}, nil
}

// Version reads the version from the installed compiler package once. An
// empty string means the version could not be determined.
func (n *Node) Version() string {
	n.versionOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		stdout, _, err := n.run(ctx, nil, "--version")
		if err == nil {
			n.version = strings.TrimSpace(stdout)
		}
	})
	return n.version
}

type wirePosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p *wirePosition) toPosition() *Position {
	if p == nil {
		return nil
	}
	return &Position{Line: p.Line, Column: p.Column}
}

type wireOutput struct {
	Code string         `json:"code"`
	Map  *sourcemap.Map `json:"map"`
}

type wireResult struct {
	JS       *wireOutput `json:"js"`
	CSS      *wireOutput `json:"css"`
	Warnings []struct {
		Code    string        `json:"code"`
		Message string        `json:"message"`
		Start   *wirePosition `json:"start"`
	} `json:"warnings"`
	Error *struct {
		Message  string        `json:"message"`
		Code     string        `json:"code"`
		Filename string        `json:"filename"`
		Start    *wirePosition `json:"start"`
		End      *wirePosition `json:"end"`
		Frame    string        `json:"frame"`
	} `json:"error"`
}

func (n *Node) Compile(ctx context.Context, code string, options Options) (*Result, error) {
	input, err := json.Marshal(map[string]any{
		"code":    code,
		"options": WireOptions(options, n.Version()),
	})
	if err != nil {
		return nil, fmt.Errorf("encode compiler input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	stdout, stderr, err := n.run(ctx, input)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("compiling %s timed out after %v", options.Filename, n.timeout)
		}
		if stderr != "" {
			return nil, fmt.Errorf("run compiler: %w: %s", err, strings.TrimSpace(stderr))
		}
		return nil, fmt.Errorf("run compiler: %w", err)
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(stdout), &wire); err != nil {
		return nil, fmt.Errorf("decode compiler output: %w", err)
	}
	if wire.Error != nil {
		filename := wire.Error.Filename
		if filename == "" {
			filename = options.Filename
		}
		return nil, &Error{
			Message:  wire.Error.Message,
			Code:     wire.Error.Code,
			Filename: filename,
			Start:    wire.Error.Start.toPosition(),
			End:      wire.Error.End.toPosition(),
			Frame:    wire.Error.Frame,
		}
	}
	if wire.JS == nil {
		return nil, errors.New("compiler returned no JavaScript output")
	}

	result := &Result{JS: Output{Code: wire.JS.Code, Map: wire.JS.Map}}
	if wire.CSS != nil {
		result.CSS = &Output{Code: wire.CSS.Code, Map: wire.CSS.Map}
	}
	for _, w := range wire.Warnings {
		result.Warnings = append(result.Warnings, Warning{Code: w.Code, Message: w.Message, Start: w.Start.toPosition()})
	}
	return result, nil
}

func (n *Node) run(ctx context.Context, stdin []byte, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, n.nodePath, append([]string{"-e", bridgeScript, "--"}, args...)...)
	cmd.Dir = n.root
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
