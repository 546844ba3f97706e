// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package color paints log text with ANSI foreground colors.
package color

import (
	"fmt"
	"os"

	"go.ubxlib.dev/automation/tools/lib/isatty"
)

type Colorfn func(format string, a ...interface{}) string

const (
	escape = "\033["
	clear  = escape + "0m"
)

type ColorCode int

// Foreground text colors
const (
	BlackFg ColorCode = iota + 30
	RedFg
	GreenFg
	YellowFg
	BlueFg
	MagentaFg
	CyanFg
	WhiteFg
	DefaultFg
)

type Color interface {
	Black(format string, a ...interface{}) string
	Red(format string, a ...interface{}) string
	Green(format string, a ...interface{}) string
	Yellow(format string, a ...interface{}) string
	Blue(format string, a ...interface{}) string
	Magenta(format string, a ...interface{}) string
	Cyan(format string, a ...interface{}) string
	White(format string, a ...interface{}) string
	DefaultColor(format string, a ...interface{}) string
	WithColor(code ColorCode, format string, a ...interface{}) string
	Enabled() bool
}

// palette implements Color. A disabled palette returns plain text so that
// log files and CI consoles never see escape sequences.
type palette struct {
	enabled bool
}

func (p palette) paint(c ColorCode, format string, a ...interface{}) string {
	s := fmt.Sprintf(format, a...)
	if !p.enabled || c == DefaultFg {
		return s
	}
	return fmt.Sprintf("%v%vm%v%v", escape, c, s, clear)
}

func (p palette) Black(format string, a ...interface{}) string { return p.paint(BlackFg, format, a...) }
func (p palette) Red(format string, a ...interface{}) string   { return p.paint(RedFg, format, a...) }
func (p palette) Green(format string, a ...interface{}) string { return p.paint(GreenFg, format, a...) }
func (p palette) Yellow(format string, a ...interface{}) string {
	return p.paint(YellowFg, format, a...)
}
func (p palette) Blue(format string, a ...interface{}) string { return p.paint(BlueFg, format, a...) }
func (p palette) Magenta(format string, a ...interface{}) string {
	return p.paint(MagentaFg, format, a...)
}
func (p palette) Cyan(format string, a ...interface{}) string  { return p.paint(CyanFg, format, a...) }
func (p palette) White(format string, a ...interface{}) string { return p.paint(WhiteFg, format, a...) }
func (p palette) DefaultColor(format string, a ...interface{}) string {
	return p.paint(DefaultFg, format, a...)
}
func (p palette) WithColor(code ColorCode, format string, a ...interface{}) string {
	return p.paint(code, format, a...)
}
func (p palette) Enabled() bool { return p.enabled }

type EnableColor int

const (
	ColorNever EnableColor = iota
	ColorAuto
	ColorAlways
)

var enableColorNames = map[EnableColor]string{
	ColorNever:  "never",
	ColorAuto:   "auto",
	ColorAlways: "always",
}

func isColorAvailable() bool {
	switch os.Getenv("TERM") {
	case "dumb", "":
		return false
	}
	return isatty.IsTerminal()
}

// NewColor returns a Color honoring the given setting. ColorAuto enables
// color only when stdout is a capable terminal.
func NewColor(enableColor EnableColor) Color {
	enabled := enableColor == ColorAlways
	if enableColor == ColorAuto {
		enabled = isColorAvailable()
	}
	return palette{enabled: enabled}
}

func (ec *EnableColor) String() string {
	return enableColorNames[*ec]
}

func (ec *EnableColor) Set(s string) error {
	for v, name := range enableColorNames {
		if name == s {
			*ec = v
			return nil
		}
	}
	return fmt.Errorf("%s is not a valid color value", s)
}
