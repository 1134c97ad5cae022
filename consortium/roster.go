package consortium

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/consortium/types"
)

// ParseRoster expands CLI-style roster entries into a Roster. Each entry is
// either "identifier" or "identifier:count"; an absent count uses
// defaultCount (itself defaulting to 1 when non-positive). Invalid counts
// are a configuration error raised before any dispatch.
func ParseRoster(entries []string, defaultCount int) (types.Roster, error) {
	if defaultCount < 1 {
		defaultCount = 1
	}

	roster := make(types.Roster, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id := entry
		count := defaultCount
		if idx := strings.LastIndex(entry, ":"); idx >= 0 {
			id = strings.TrimSpace(entry[:idx])
			rawCount := strings.TrimSpace(entry[idx+1:])
			n, err := strconv.Atoi(rawCount)
			if err != nil {
				return nil, types.NewError(types.ErrConfigInvalid,
					fmt.Sprintf("invalid instance count for agent %q: %q", id, rawCount)).WithCause(err)
			}
			if n < 1 {
				return nil, types.NewError(types.ErrConfigInvalid,
					fmt.Sprintf("instance count for agent %q must be positive, got %d", id, n))
			}
			count = n
		}

		if id == "" {
			return nil, types.NewError(types.ErrConfigInvalid,
				fmt.Sprintf("empty agent identifier in roster entry %q", entry))
		}

		roster = append(roster, types.AgentSpec{ID: id, Count: count})
	}

	if len(roster) == 0 {
		return nil, types.NewError(types.ErrConfigInvalid, "roster is empty")
	}
	return roster, nil
}

// ParseRosterString parses a comma-joined roster like "a:1,b:2".
func ParseRosterString(s string, defaultCount int) (types.Roster, error) {
	return ParseRoster(strings.Split(s, ","), defaultCount)
}
