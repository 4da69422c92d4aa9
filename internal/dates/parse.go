package dates

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Parser resolves natural-language due-date phrases against a base time.
type Parser struct {
	w *when.Parser
}

func NewParser() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w}
}

// relativeCues signal that a phrase shifts an existing due date rather than
// naming a new one ("push it further", "postpone", "extend by a day").
var relativeCues = []string{"further", "later", "extend", "postpone", "delay", "push"}

// Relative reports whether a phrase should be anchored to an existing due
// date instead of the current time.
func Relative(phrase string) bool {
	lower := strings.ToLower(phrase)
	for _, cue := range relativeCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// Parse resolves phrase against base. It returns ok=false when no date can
// be recognized in the text.
func (p *Parser) Parse(phrase string, base time.Time) (time.Time, bool) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return time.Time{}, false
	}
	r, err := p.w.Parse(phrase, base)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	return r.Time, true
}

// ResolveDue picks the anchor for a due-date phrase: relative postponement
// phrases are anchored to the task's existing due date, everything else to
// now.
func (p *Parser) ResolveDue(phrase string, now time.Time, existingDue *time.Time) (time.Time, bool) {
	base := now
	if existingDue != nil && Relative(phrase) {
		base = *existingDue
	}
	return p.Parse(phrase, base)
}
