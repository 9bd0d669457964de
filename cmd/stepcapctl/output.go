package main

import (
	"fmt"
	"os"
)

type palette struct {
	Reset, Bold, Dim, Red, Green, Yellow, Cyan string
}

// c is empty when stdout is not a terminal or NO_COLOR is set.
var c = newPalette()

func newPalette() palette {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return palette{}
	}
	if fi, err := os.Stdout.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return palette{}
	}
	return palette{
		Reset:  "\033[0m",
		Bold:   "\033[1m",
		Dim:    "\033[2m",
		Red:    "\033[31m",
		Green:  "\033[32m",
		Yellow: "\033[33m",
		Cyan:   "\033[36m",
	}
}

func printSection(title string) {
	fmt.Printf("\n%s%s%s\n", c.Bold, title, c.Reset)
}

func printField(label, value string) {
	fmt.Printf("  %s%-14s%s %s\n", c.Dim, label, c.Reset, value)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%sError%s: %s\n", c.Red, c.Reset, msg)
}

func printWarning(msg string) {
	fmt.Fprintf(os.Stderr, "%sWarning%s: %s\n", c.Yellow, c.Reset, msg)
}
