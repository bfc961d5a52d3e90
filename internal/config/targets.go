package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"db_sheets_sync/internal/source"

	"github.com/pelletier/go-toml/v2"
)

// Target pairs a source table with the sheet it is published to.
type Target struct {
	Name  string `json:"name" toml:"name"`
	Table string `json:"table" toml:"table"`
	Sheet string `json:"sheet" toml:"sheet"`
	Theme string `json:"theme" toml:"theme"`
}

type targetsFile struct {
	Targets []Target `toml:"target"`
}

// LoadTargetsFile reads [[target]] tables from a TOML file.
func LoadTargetsFile(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	return ParseTargetsTOML(data)
}

func ParseTargetsTOML(data []byte) ([]Target, error) {
	var file targetsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse targets file: %w", err)
	}

	targets := make([]Target, 0, len(file.Targets))
	for _, t := range file.Targets {
		targets = append(targets, t.withDefaults())
	}
	return targets, nil
}

// ParseTargetsList parses "table:sheet[:theme]" entries separated by commas.
func ParseTargetsList(raw string) ([]Target, error) {
	var targets []Target
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) > 3 {
			return nil, fmt.Errorf("invalid target %q: expected table:sheet[:theme]", entry)
		}

		t := Target{Table: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			t.Sheet = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			t.Theme = strings.TrimSpace(parts[2])
		}
		targets = append(targets, t.withDefaults())
	}
	return targets, nil
}

func (t Target) withDefaults() Target {
	if t.Name == "" {
		t.Name = t.Table
	}
	if t.Sheet == "" {
		t.Sheet = t.Table
	}
	if t.Theme == "" {
		t.Theme = "blue"
	}
	return t
}

func validateTargets(targets []Target) error {
	if len(targets) == 0 {
		return errors.New("at least one sync target is required")
	}

	var errs []error
	seen := map[string]bool{}
	for i, t := range targets {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("target %d: name is required", i))
		} else if seen[t.Name] {
			errs = append(errs, fmt.Errorf("target %d: duplicate name %q", i, t.Name))
		}
		seen[t.Name] = true

		if err := source.ValidateTable(t.Table); err != nil {
			errs = append(errs, fmt.Errorf("target %q: %w", t.Name, err))
		}
		if t.Sheet == "" {
			errs = append(errs, fmt.Errorf("target %q: sheet is required", t.Name))
		}
	}
	return errors.Join(errs...)
}
