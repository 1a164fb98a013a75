package engine

import (
	"regexp"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// classifierRule maps a pattern set onto an error kind. Rules are evaluated in
// order and the first match wins.
type classifierRule struct {
	kind     domain.ErrorKind
	patterns []*regexp.Regexp
}

func rule(kind domain.ErrorKind, patterns ...string) classifierRule {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return classifierRule{kind: kind, patterns: compiled}
}

var classifierRules = []classifierRule{
	rule(domain.KindAccessBlocked,
		`http error 403`,
		`\b403\b.*forbidden`,
		`sign in to confirm`,
		`not a bot`,
		`http error 429`,
		`too many requests`,
		`login required`,
		`requires authentication`,
		`account cookies`,
	),
	rule(domain.KindFormatUnavailable,
		`requested format (is )?not available`,
		`no video formats found`,
		`no formats found`,
	),
	rule(domain.KindMergeFailure,
		`postprocessing:`,
		`error merging`,
		`ffmpeg not found`,
		`ffprobe( and ffmpeg)? not found`,
		`conversion failed`,
	),
	rule(domain.KindTimeout,
		`timed out`,
		`timeout`,
	),
	rule(domain.KindNetwork,
		`connection reset`,
		`connection refused`,
		`connection aborted`,
		`name resolution`,
		`name or service not known`,
		`network is unreachable`,
		`unable to download webpage`,
		`http error 5\d\d`,
		`incompleteread`,
		`ssl:`,
		`remote end closed connection`,
	),
}

// Classify maps accumulated diagnostic text onto an error kind. It is a pure
// function of its input; text matching no rule is KindUnknown.
func Classify(diagnostic string) domain.ErrorKind {
	for _, r := range classifierRules {
		for _, p := range r.patterns {
			if p.MatchString(diagnostic) {
				return r.kind
			}
		}
	}
	return domain.KindUnknown
}
