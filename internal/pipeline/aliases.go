package pipeline

import "strings"

// legacyAliases maps older stage-id spellings found in event logs to the
// canonical ids. Keys are lower-case.
var legacyAliases = map[string]StageID{
	"intake":         StageTriage,
	"planning":       StagePlan,
	"debate":         StageDeliberation,
	"deliberate":     StageDeliberation,
	"implementation": StageImplement,
	"impl":           StageImplement,
	"develop":        StageImplement,
	"dev":            StageImplement,
	"testing":        StageTest,
	"tests":          StageTest,
	"ci":             StageTest,
	"code-review":    StageReview,
	"code_review":    StageReview,
	"pr-review":      StageReview,
	"deployment":     StageDeploy,
	"publish":        StageRelease,
	"ship":           StageRelease,
}

// Canonical resolves a raw stage id, possibly a legacy spelling, to its
// canonical [StageID]. Matching is case-insensitive and ignores surrounding
// whitespace. The second return value is false for unknown ids.
func Canonical(raw string) (StageID, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if id := StageID(key); id.IsValid() {
		return id, true
	}
	id, ok := legacyAliases[key]
	return id, ok
}
