package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// AddArgs holds the parsed arguments of the /add command.
// Cron uses the dot-separated form (min.hour.day.month.weekday) so a
// schedule stays a single chat argument.
type AddArgs struct {
	URL    string
	Cron   string
	Filter string
}

// ParseAddCommand parses "/add <url> [cron] [filter]" arguments.
func ParseAddCommand(args string) (AddArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return AddArgs{}, fmt.Errorf("usage: /add <url> [min.hour.day.month.weekday] [filter regex]")
	}
	parsed := AddArgs{URL: parts[0]}
	if len(parts) > 1 {
		parsed.Cron = parts[1]
	}
	if len(parts) > 2 {
		parsed.Filter = strings.Join(parts[2:], " ")
	}
	return parsed, nil
}

// ParseIndexArg extracts a 1-based subscription index from a command
// argument string.
func ParseIndexArg(args string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return 0, fmt.Errorf("invalid subscription number %q", strings.TrimSpace(args))
	}
	return idx, nil
}
