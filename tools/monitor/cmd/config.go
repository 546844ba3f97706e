// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"go.ubxlib.dev/automation/tools/lib/serial"
	"go.ubxlib.dev/automation/tools/testing/report"
)

const defaultRTTAddress = "localhost:19021"

// sessionConfig is everything needed to run one watch session. It can be
// loaded from a YAML file; flags given on the command line take precedence.
type sessionConfig struct {
	Port      string `yaml:"port"`
	Transport string `yaml:"transport"`
	// Terminator is "cr" or "lf". Empty picks one to suit the transport.
	Terminator string `yaml:"terminator"`

	SendString        string `yaml:"send_string"`
	GuardSeconds      int    `yaml:"guard_seconds"`
	InactivitySeconds int    `yaml:"inactivity_seconds"`
	Instance          string `yaml:"instance"`

	LogFile      string         `yaml:"log_file"`
	EventLogFile string         `yaml:"event_log_file"`
	Reports      report.Outputs `yaml:"reports"`

	BaudRate       int    `yaml:"baud_rate"`
	PortableSerial bool   `yaml:"portable_serial"`
	PTY            bool   `yaml:"pty"`
	RTTAddress     string `yaml:"rtt_address"`
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		Transport:  transportAuto,
		BaudRate:   serial.DefaultBaudRate,
		RTTAddress: defaultRTTAddress,
	}
}

func loadSessionConfig(path string, cfg *sessionConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not open config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return nil
}

// overlay copies into cfg the fields of flags whose flag names are in set.
func (cfg *sessionConfig) overlay(flags *sessionConfig, set map[string]bool) {
	apply := map[string]func(){
		"transport":       func() { cfg.Transport = flags.Transport },
		"terminator":      func() { cfg.Terminator = flags.Terminator },
		"s":               func() { cfg.SendString = flags.SendString },
		"t":               func() { cfg.GuardSeconds = flags.GuardSeconds },
		"i":               func() { cfg.InactivitySeconds = flags.InactivitySeconds },
		"instance":        func() { cfg.Instance = flags.Instance },
		"l":               func() { cfg.LogFile = flags.LogFile },
		"event-log":       func() { cfg.EventLogFile = flags.EventLogFile },
		"x":               func() { cfg.Reports.XML = flags.Reports.XML },
		"summary-json":    func() { cfg.Reports.SummaryJSON = flags.Reports.SummaryJSON },
		"tap":             func() { cfg.Reports.TAP = flags.Reports.TAP },
		"baud":            func() { cfg.BaudRate = flags.BaudRate },
		"portable-serial": func() { cfg.PortableSerial = flags.PortableSerial },
		"pty":             func() { cfg.PTY = flags.PTY },
		"rtt-address":     func() { cfg.RTTAddress = flags.RTTAddress },
	}
	for name := range set {
		if fn, ok := apply[name]; ok {
			fn()
		}
	}
}

func (cfg *sessionConfig) guardTime() time.Duration {
	return time.Duration(cfg.GuardSeconds) * time.Second
}

func (cfg *sessionConfig) inactivityTime() time.Duration {
	return time.Duration(cfg.InactivitySeconds) * time.Second
}

func (cfg *sessionConfig) validate() error {
	if cfg.Port == "" {
		return fmt.Errorf("no port given")
	}
	if cfg.GuardSeconds < 0 || cfg.InactivitySeconds < 0 {
		return fmt.Errorf("timer values must not be negative")
	}
	switch cfg.Terminator {
	case "", "cr", "lf":
	default:
		return fmt.Errorf("invalid terminator %q, want cr or lf", cfg.Terminator)
	}
	return nil
}
