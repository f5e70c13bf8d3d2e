// Package slot maps wall-clock time onto the canteen's meal windows.
package slot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Morning   = "morning"
	Afternoon = "afternoon"
	Evening   = "evening"
	Night     = "night"
)

// Window is a meal slot starting at StartHour and running until the next
// window's start. The last window wraps past midnight to the first.
type Window struct {
	Name      string
	StartHour int
}

// Resolver partitions the 24 hours of a day into contiguous windows.
type Resolver struct {
	windows []Window
}

// Default is morning [6,11), afternoon [11,15), evening [15,19), night otherwise.
func Default() *Resolver {
	return &Resolver{windows: []Window{
		{Name: Morning, StartHour: 6},
		{Name: Afternoon, StartHour: 11},
		{Name: Evening, StartHour: 15},
		{Name: Night, StartHour: 19},
	}}
}

// New validates windows and builds a resolver. Names must be unique and start
// hours strictly increasing within 0..23, so the windows never overlap and
// together cover the whole day.
func New(windows []Window) (*Resolver, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("slot: at least one window required")
	}
	seen := make(map[string]bool, len(windows))
	prev := -1
	for _, w := range windows {
		name := strings.ToLower(strings.TrimSpace(w.Name))
		if name == "" {
			return nil, fmt.Errorf("slot: empty window name")
		}
		if strings.Contains(name, ",") {
			return nil, fmt.Errorf("slot: window name %q contains a comma", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("slot: duplicate window %q", name)
		}
		if w.StartHour < 0 || w.StartHour > 23 {
			return nil, fmt.Errorf("slot: window %q start hour %d out of range", name, w.StartHour)
		}
		if w.StartHour <= prev {
			return nil, fmt.Errorf("slot: window %q must start after hour %d", name, prev)
		}
		seen[name] = true
		prev = w.StartHour
	}
	out := make([]Window, len(windows))
	for i, w := range windows {
		out[i] = Window{Name: strings.ToLower(strings.TrimSpace(w.Name)), StartHour: w.StartHour}
	}
	return &Resolver{windows: out}, nil
}

// Parse reads "morning=6,afternoon=11,evening=15,night=19". An empty string
// returns Default().
func Parse(spec string) (*Resolver, error) {
	if strings.TrimSpace(spec) == "" {
		return Default(), nil
	}
	var windows []Window
	for _, part := range strings.Split(spec, ",") {
		name, hour, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("slot: malformed window %q", part)
		}
		h, err := strconv.Atoi(strings.TrimSpace(hour))
		if err != nil {
			return nil, fmt.Errorf("slot: window %q: %w", name, err)
		}
		windows = append(windows, Window{Name: name, StartHour: h})
	}
	return New(windows)
}

// Resolve returns the slot name for t's hour in t's location.
func (r *Resolver) Resolve(t time.Time) string {
	h := t.Hour()
	current := r.windows[len(r.windows)-1].Name
	for _, w := range r.windows {
		if w.StartHour > h {
			break
		}
		current = w.Name
	}
	return current
}

// Names lists the slot names in day order.
func (r *Resolver) Names() []string {
	names := make([]string, len(r.windows))
	for i, w := range r.windows {
		names[i] = w.Name
	}
	return names
}

// Valid reports whether name is one of the configured slots.
func (r *Resolver) Valid(name string) bool {
	for _, w := range r.windows {
		if w.Name == name {
			return true
		}
	}
	return false
}

// SplitList parses a stored comma-delimited slot list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Contains reports whether the comma-delimited list holds name.
func Contains(list, name string) bool {
	for _, s := range SplitList(list) {
		if s == name {
			return true
		}
	}
	return false
}
