package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ── Startup display helpers ────────────────────────────────────────

// printer groups digits ("20,000") regardless of the host locale.
var printer = message.NewPrinter(language.English)

func printBanner(version string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Printf("\033[36;1m  │\033[0m          statecore  %-22s\033[36;1m│\033[0m\n", version)
	fmt.Println("\033[36;1m  │\033[0m     deterministic simulation state core   \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := printer.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printUsage(label string, pairs, capacity int, ratio float64) {
	value := printer.Sprintf("%d / %d (%.1f%%)", pairs, capacity, ratio*100)
	dotsLen := 42 - len(label) - len(value)
	if dotsLen < 3 {
		dotsLen = 3
	}
	color := "32"
	switch {
	case ratio >= 0.95:
		color = "31"
	case ratio >= 0.80:
		color = "33"
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[%sm%s\033[0m\n", label, strings.Repeat("·", dotsLen), color, value)
}

// printTiming shows a phase's total time and its mean per cycle.
func printTiming(label string, total time.Duration, cycles int) {
	var mean time.Duration
	if cycles > 0 {
		mean = total / time.Duration(cycles)
	}
	value := fmt.Sprintf("%s (%s/cycle)", total.Round(time.Microsecond), mean.Round(time.Microsecond))
	dotsLen := 42 - len(label) - len(value)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[36m%s\033[0m\n", label, strings.Repeat("·", dotsLen), value)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printFail(msg string) {
	fmt.Printf("  \033[31m✗\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}
