package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

var symbolFormat = regexp.MustCompile(`^[A-Z0-9.\-]+$`)

// PromptForSymbols asks for the ticker symbols the crew should discuss.
func PromptForSymbols() ([]string, error) {
	var raw string
	prompt := &survey.Input{
		Message: "Enter ticker symbols to deliberate on (space separated, e.g. AAPL NVDA):",
		Help:    "The crew discovers additional candidates on its own; these seed the market context.",
	}

	err := survey.AskOne(prompt, &raw, survey.WithValidator(func(val interface{}) error {
		symbols := splitSymbols(val.(string))
		if len(symbols) == 0 {
			return fmt.Errorf("at least one symbol is required")
		}
		for _, s := range symbols {
			if len(s) > 10 {
				return fmt.Errorf("symbol %q too long (max 10 characters)", s)
			}
			if !symbolFormat.MatchString(s) {
				return fmt.Errorf("invalid symbol %q (use letters, numbers, dots, and hyphens only)", s)
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	return splitSymbols(raw), nil
}

func splitSymbols(raw string) []string {
	var out []string
	for _, field := range strings.Fields(strings.ToUpper(raw)) {
		field = strings.Trim(field, ",")
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}
