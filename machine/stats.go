package machine

import (
	"encoding/json"
	"sort"
	"time"
)

// Stats holds information about running routines.
type Stats struct {
	Count    int            `json:"count"`
	Routines []RoutineStats `json:"routines"`
}

// String prints a pretty json string of the stats
func (s Stats) String() string {
	bits, _ := json.MarshalIndent(&s, "", "    ")
	return string(bits)
}

// Names returns the names of the running routines, sorted.
func (s Stats) Names() []string {
	names := make([]string, 0, len(s.Routines))
	for _, r := range s.Routines {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// RoutineStats holds information about a single routine.
type RoutineStats struct {
	PID      uint64        `json:"pid"`
	Name     string        `json:"name"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
}
