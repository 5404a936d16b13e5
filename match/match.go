// Package match parses configured room-name patterns into groups and matches
// them against the room list fetched from a server. Matching is substring
// based and intentionally forgiving: a group is refreshed with whatever
// subset of its patterns found a room.
package match

import (
	"strings"

	"github.com/onnwee/live-refresher/liveadmin"
)

// Group is one logical reporting slot: alternative room-name substrings, any
// of which may satisfy it.
type Group struct {
	Patterns []string
}

// Matched holds the rooms discovered for one Group, with the room names kept
// in pattern order for reporting.
type Matched struct {
	Names []string
	Rooms []liveadmin.Room
}

// Label is the reporting name for the matched group.
func (m Matched) Label() string { return strings.Join(m.Names, "/") }

// ParseGroups splits each raw entry on "|" into alternative patterns,
// trimming whitespace and dropping empty patterns. Entries that yield no
// patterns are dropped.
func ParseGroups(entries []string) []Group {
	var groups []Group
	for _, entry := range entries {
		var patterns []string
		for _, p := range strings.Split(entry, "|") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		if len(patterns) > 0 {
			groups = append(groups, Group{Patterns: patterns})
		}
	}
	return groups
}

// FilterRooms matches each group's patterns against rooms. For each pattern
// the first room whose name contains it wins (case-sensitive); a room may be
// claimed by multiple patterns or groups. Patterns with no match are dropped,
// and groups that collected no rooms are dropped entirely.
func FilterRooms(rooms []liveadmin.Room, groups []Group) []Matched {
	var out []Matched
	for _, g := range groups {
		var m Matched
		for _, pattern := range g.Patterns {
			for _, room := range rooms {
				if strings.Contains(room.Name, pattern) {
					m.Names = append(m.Names, room.Name)
					m.Rooms = append(m.Rooms, room)
					break
				}
			}
		}
		if len(m.Rooms) > 0 {
			out = append(out, m)
		}
	}
	return out
}
