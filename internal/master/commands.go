package master

import (
	"fmt"
	"strconv"
	"strings"
)

// commandHandler implements the command-inspection service's verbs: HELP,
// STATS, and TOP <n>, restored from tallier.py's CMD_help (there the only
// implemented verb besides the implicit error path).
func (m *Master) commandHandler(line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch strings.ToUpper(fields[0]) {
	case "HELP":
		return []string{
			"Available commands:",
			"  HELP",
			"  STATS",
			"  TOP",
		}
	case "STATS":
		lines, err := m.stats.Render()
		if err != nil {
			m.log.WithError(err).Warn("error rendering self-stats for command service")
			return []string{"ERROR: internal error"}
		}
		return lines
	case "TOP":
		n := 10
		if len(fields) > 1 {
			if parsed, err := strconv.Atoi(fields[1]); err == nil && parsed > 0 {
				n = parsed
			}
		}
		top := m.freq.Top(n)
		lines := make([]string, 0, len(top)+1)
		for _, e := range top {
			lines = append(lines, fmt.Sprintf("%s %d", e.Key, e.Count))
		}
		retained, total := m.freq.Coverage()
		lines = append(lines, fmt.Sprintf("coverage %d/%d", retained, total))
		return lines
	default:
		return nil
	}
}
