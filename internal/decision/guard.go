package decision

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/tiiuae/patrolengine/internal/types"
)

const maxTextLength = 10000

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)system:`),
	regexp.MustCompile(`(?i)assistant:`),
	regexp.MustCompile(`(?i)user:`),
	regexp.MustCompile(`(?i)ignore (all )?previous`),
	regexp.MustCompile(`(?i)ignore above`),
	regexp.MustCompile(`(?i)new instructions`),
	regexp.MustCompile(`(?i)prompt override`),
	regexp.MustCompile(`<\w+>`),
	regexp.MustCompile(`(?i)function\s*\(`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)import\s+\w+`),
	regexp.MustCompile(`(?i)require\s+['"].*?['"]`),
	regexp.MustCompile(`(?i)land now`),
}

// Screen rejects a decision whose free text looks like it carries
// instructions read off the image.
func Screen(d types.Decision) error {
	for _, text := range decisionText(d) {
		if len(strings.TrimSpace(text)) > maxTextLength {
			return errors.WithMessagef(ErrUnsafeDecision, "suspicious amount of text (%d chars)", len(text))
		}
		for _, p := range injectionPatterns {
			if m := p.FindString(text); m != "" {
				return errors.WithMessagef(ErrUnsafeDecision, "potential prompt injection: %q", m)
			}
		}
	}
	return nil
}

// decisionText is the non-empty free text of a decision.
func decisionText(d types.Decision) []string {
	texts := make([]string, 0, 4)
	for _, t := range []string{d.Summary, d.Message} {
		if t != "" {
			texts = append(texts, t)
		}
	}
	if d.Emergency != nil && d.Emergency.Description != "" {
		texts = append(texts, d.Emergency.Description)
	}
	if d.Observation != nil && d.Observation.Description != "" {
		texts = append(texts, d.Observation.Description)
	}
	return texts
}
