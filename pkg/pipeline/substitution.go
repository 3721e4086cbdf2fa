package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// SubstitutionRule is a user-defined text rewrite applied to every message
// before it is sent. Pattern is a regular expression; a literal-only rule
// can set Literal instead.
type SubstitutionRule struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
	Literal     bool   `json:"literal,omitempty" yaml:"literal,omitempty"`
}

// NewSubstitutionProcessor applies the rules in order to all message
// contents. A malformed pattern is skipped and reported; the remaining
// rules still run, so one broken user regex never blocks the send.
func NewSubstitutionProcessor(rules []SubstitutionRule) Processor {
	return Processor{
		ID:             "substitution",
		Name:           "apply text substitution rules",
		Priority:       PrioritySubstitution,
		DefaultEnabled: true,
		Execute: func(_ context.Context, pctx *Context) error {
			var badPatterns []string

			for _, rule := range rules {
				if rule.Literal {
					for i := range pctx.Messages {
						pctx.Messages[i].Content = strings.ReplaceAll(pctx.Messages[i].Content, rule.Pattern, rule.Replacement)
					}
					continue
				}
				re, err := regexp.Compile(rule.Pattern)
				if err != nil {
					badPatterns = append(badPatterns, rule.Pattern)
					continue
				}
				for i := range pctx.Messages {
					pctx.Messages[i].Content = re.ReplaceAllString(pctx.Messages[i].Content, rule.Replacement)
				}
			}

			if len(badPatterns) > 0 {
				return errors.Errorf("invalid substitution patterns: %s", strings.Join(badPatterns, ", "))
			}
			return nil
		},
	}
}
