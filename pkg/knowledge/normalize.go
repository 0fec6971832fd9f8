package knowledge

import "strings"

// synonyms folds semantically-identical label fragments emitted by different
// sources onto one canonical form. Applied after separator stripping.
var synonyms = [][2]string{
	{"clockspeed", "clk"},
	{"clock", "clk"},
	{"frequency", "freq"},
	{"memory", "mem"},
	{"graphics", "gpu"},
	{"maximum", "max"},
	{"minimum", "min"},
}

// NormalizeSpecKey canonicalizes a source-local specification label so that
// variants like "Base Clock", "base-clock" and "BASE_CLOCK" collapse to the
// same learned spec: lowercase, strip spaces/dashes/underscores, then fold
// synonyms.
func NormalizeSpecKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	for _, pair := range synonyms {
		s = strings.ReplaceAll(s, pair[0], pair[1])
	}
	return s
}
