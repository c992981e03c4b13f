// Package schedule seeds the engine with preset timers and restarts them on
// cron schedules.
package schedule

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Preset is one entry of the presets file.
//
//	presets:
//	  - id: standup
//	    name: Daily standup
//	    duration: 15m
//	    cron: "0 9 * * 1-5"
type Preset struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"`
	Cron     string        `yaml:"cron"`

	schedule cron.Schedule
}

// DurationMs is the preset duration in whole milliseconds.
func (p Preset) DurationMs() int64 { return p.Duration.Milliseconds() }

// Scheduled reports whether the preset has a cron expression.
func (p Preset) Scheduled() bool { return p.schedule != nil }

type presetsFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadFile reads presets from path. A missing path is an error; an empty
// path yields no presets.
func LoadFile(path string) ([]Preset, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open presets: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a presets document.
func Parse(r io.Reader) ([]Preset, error) {
	var doc presetsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode presets: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Presets))
	for i := range doc.Presets {
		p := &doc.Presets[i]
		if p.ID == "" {
			return nil, fmt.Errorf("preset %d: missing id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("preset %q: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.Cron != "" {
			sched, err := cron.ParseStandard(p.Cron)
			if err != nil {
				return nil, fmt.Errorf("preset %q: parse cron %q: %w", p.ID, p.Cron, err)
			}
			p.schedule = sched
		}
	}
	return doc.Presets, nil
}
