package logger

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

const (
	reset = "\033[0m"
	bold  = "\033[1m"
	dim   = "\033[2m"

	red     = "\033[31m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	blue    = "\033[34m"
	magenta = "\033[35m"
	cyan    = "\033[36m"
	white   = "\033[37m"
)

var useColors = runtime.GOOS != "windows" || os.Getenv("TERM") != ""

func colorize(color, text string) string {
	if !useColors {
		return text
	}
	return color + text + reset
}

func timestamp() string {
	return colorize(dim, time.Now().Format("15:04:05"))
}

func line(icon, color, tag, msg string) {
	fmt.Printf("%s %s %s %s\n", timestamp(), colorize(color, icon), colorize(color, "["+tag+"]"), msg)
}

// Banner prints the startup banner.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	pad := 22 - len(version)
	if pad < 1 {
		pad = 1
	}
	fmt.Println()
	fmt.Println(colorize(cyan+bold, "  ╔═══════════════════════════════════════╗"))
	fmt.Println(colorize(cyan+bold, "  ║") + colorize(yellow+bold, "         LP TRADER ") + colorize(dim, version) + colorize(cyan+bold, strings.Repeat(" ", pad)+"║"))
	fmt.Println(colorize(cyan+bold, "  ║") + colorize(dim, "      Loyalty Store Analysis           ") + colorize(cyan+bold, "║"))
	fmt.Println(colorize(cyan+bold, "  ╚═══════════════════════════════════════╝"))
	fmt.Println()
}

// Info prints an info message.
func Info(tag, msg string) { line("●", blue, tag, msg) }

// Success prints a success message.
func Success(tag, msg string) { line("✓", green, tag, msg) }

// Warn prints a warning message.
func Warn(tag, msg string) { line("⚠", yellow, tag, msg) }

// Error prints an error message.
func Error(tag, msg string) { line("✗", red, tag, msg) }

// Loading prints a progress message without a trailing newline; finish it with Done.
func Loading(tag, msg string) {
	fmt.Printf("%s %s %s %s", timestamp(), colorize(magenta, "◐"), colorize(magenta, "["+tag+"]"), msg)
}

// Done completes a Loading line.
func Done(details string) {
	if details == "" {
		fmt.Println()
		return
	}
	fmt.Printf(" %s\n", colorize(dim, details))
}

// Server prints the listening address.
func Server(addr string) {
	fmt.Println()
	fmt.Printf("%s %s Server running at %s\n", timestamp(), colorize(green+bold, "►"), colorize(cyan+bold, "http://"+addr))
	fmt.Printf("%s   %s\n", strings.Repeat(" ", 8), colorize(dim, "Press Ctrl+C to stop"))
	fmt.Println()
}

// Section prints a section header.
func Section(title string) {
	fmt.Printf("\n%s %s\n", colorize(dim, "───"), colorize(white+bold, title))
}

// Stats prints one labelled value under a Section.
func Stats(label string, value interface{}) {
	fmt.Printf("    %s %s %v\n", colorize(dim, "•"), colorize(dim, label+":"), colorize(white, fmt.Sprint(value)))
}
