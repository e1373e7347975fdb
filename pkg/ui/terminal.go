package ui

import (
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	mu      sync.RWMutex
	noColor bool

	unicodeOnce sync.Once
	unicodeOK   bool
)

// SetNoColor disables colored output for every style.
func SetNoColor(disable bool) {
	mu.Lock()
	defer mu.Unlock()
	noColor = disable
	if disable {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor reports whether color is disabled.
func IsNoColor() bool {
	mu.RLock()
	defer mu.RUnlock()
	return noColor
}

// ConfigureColor disables color when w is not a terminal or the
// environment asks for no color.
func ConfigureColor(w io.Writer) {
	if _, set := os.LookupEnv("NO_COLOR"); set || !IsTerminal(w) {
		SetNoColor(true)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// UnicodeTerminal reports whether stderr can render braille spinners.
// Legacy Windows consoles cannot; Windows Terminal sets WT_SESSION.
func UnicodeTerminal() bool {
	unicodeOnce.Do(func() {
		if os.Getenv("TERM") == "dumb" || !IsTerminal(os.Stderr) {
			return
		}
		if runtime.GOOS == "windows" {
			unicodeOK = os.Getenv("WT_SESSION") != ""
			return
		}
		unicodeOK = true
	})
	return unicodeOK
}

// Icon returns the unicode glyph on capable terminals and ascii otherwise.
func Icon(unicode, ascii string) string {
	if UnicodeTerminal() {
		return unicode
	}
	return ascii
}
