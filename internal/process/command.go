package process

import (
	"fmt"
	"strings"
)

// parseCommand splits command into arguments. Single and double quotes
// group words; a backslash escapes the next character.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inArg := false
	quote := rune(0)

	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			inArg = true
		case r == '\\' && i+1 < len(runes) && quote != '\'':
			i++
			current.WriteRune(runes[i])
			inArg = true
		case quote == 0 && (r == ' ' || r == '\t'):
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unclosed quote in command")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
