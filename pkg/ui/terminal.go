package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Banner is printed by interactive commands
const Banner = `
    ╔════════════════════════════════════════════╗
    ║   InstaBridge  ·  Instagram -> WhatsApp    ║
    ╚════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// Narrator reports run progress to a person
type Narrator interface {
	Step(format string, args ...interface{})
	Success(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Console narrates line by line to a writer
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewConsole creates a console narrator; color adds ANSI codes per line kind
func NewConsole(w io.Writer, color bool) *Console {
	return &Console{w: w, color: color}
}

// Stdout narrates to standard output, colored when it is a terminal
func Stdout() *Console {
	return NewConsole(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

func (c *Console) Step(format string, args ...interface{}) {
	c.line(nil, format, args)
}

func (c *Console) Success(format string, args ...interface{}) {
	c.line(Green, format, args)
}

func (c *Console) Warn(format string, args ...interface{}) {
	c.line(Yellow, format, args)
}

func (c *Console) Error(format string, args ...interface{}) {
	c.line(Red, format, args)
}

func (c *Console) line(paint func(string) string, format string, args []interface{}) {
	msg := fmt.Sprintf(format, args...)
	if c.color && paint != nil {
		msg = paint(msg)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, msg)
}

// Silent discards all narration
type Silent struct{}

func (Silent) Step(string, ...interface{})    {}
func (Silent) Success(string, ...interface{}) {}
func (Silent) Warn(string, ...interface{})    {}
func (Silent) Error(string, ...interface{})   {}

// PrintBanner prints the banner with color
func PrintBanner() {
	fmt.Print(Cyan(Banner))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Red(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Println(Green(msg))
}

// PrintInfo prints a label and value pair
func PrintInfo(label string, value string) {
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Yellow(msg))
	}
}
