//go:build !darwin && !linux
// +build !darwin,!linux

package logger

import (
	"os"

	"golang.org/x/term"
)

const SupportsColorEscapes = true

func GetTerminalInfo(file *os.File) (info TerminalInfo) {
	if term.IsTerminal(int(file.Fd())) {
		info.IsTTY = true
		info.UseColorEscapes = !hasNoColorEnvironmentVariable()
	}
	return
}
