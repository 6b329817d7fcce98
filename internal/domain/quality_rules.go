package domain

import "strings"

// QualityRule forces a fixed encode quality for image addresses matching a
// filename suffix. Business rules like "pre-sized 400X400 thumbnails always
// encode at 68" live here instead of ad hoc string checks in handlers.
type QualityRule struct {
	Suffix  string
	Quality int
}

func DefaultQualityRules() []QualityRule {
	return []QualityRule{
		{Suffix: "400X400.jpg", Quality: 68},
	}
}

// ApplyQualityRules overrides the request quality with the first matching
// rule, if any.
func ApplyQualityRules(req *TransformRequest, rules []QualityRule) {
	for _, rule := range rules {
		if rule.Suffix == "" || rule.Quality < 1 || rule.Quality > 100 {
			continue
		}
		if strings.HasSuffix(req.ImageAddress, rule.Suffix) {
			req.Quality = rule.Quality
			return
		}
	}
}
