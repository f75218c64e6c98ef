package tg

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadCommandsFile parses a commands-file into the BotCommand list
// SetMyCommands expects. Each line is "<name> <description_to_end_of_line>";
// blank and '#'-prefixed lines are ignored.
func LoadCommandsFile(path string) ([]BotCommand, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open commands file: %w", err)
	}
	defer f.Close()

	var cmds []BotCommand
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, desc, ok := cutFirstToken(line)
		if !ok {
			continue
		}
		cmds = append(cmds, BotCommand{Name: name, Description: desc})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan commands file: %w", err)
	}
	return cmds, nil
}
