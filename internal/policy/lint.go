package policy

import (
	"strings"
)

// lintMaxScore is the score of a policy with no findings.
const lintMaxScore = 20

// Analysis is the lint result for a CSP string.
type Analysis struct {
	Score          int                 `json:"score"`
	MaxScore       int                 `json:"max_score"`
	Grade          string              `json:"grade"`
	Issues         []string            `json:"issues"`
	Recommendation string              `json:"recommendation"`
	Directives     map[string][]string `json:"directives"`
}

// Analyze grades a policy in header or multi-line form.
func Analyze(value string) Analysis {
	issues := []string{}
	score := lintMaxScore

	value = strings.ToLower(strings.TrimSpace(value))
	directives := parseDirectives(value)

	if len(directives) == 0 {
		return Analysis{
			MaxScore:       lintMaxScore,
			Grade:          "F",
			Issues:         []string{"Policy is empty"},
			Recommendation: "Generate a policy from a scan of the site",
			Directives:     directives,
		}
	}

	// Check for unsafe practices
	if strings.Contains(value, "'unsafe-inline'") {
		issues = append(issues, "Contains 'unsafe-inline' which weakens CSP protection")
		score -= 5
	}

	if strings.Contains(value, "'unsafe-eval'") {
		issues = append(issues, "Contains 'unsafe-eval' which allows eval() and similar functions")
		score -= 5
	}

	if hasWildcard(directives) {
		issues = append(issues, "Contains wildcard (*) which is too permissive")
		score -= 3
	}

	// Check for essential directives
	if _, ok := directives["default-src"]; !ok {
		issues = append(issues, "Missing 'default-src' directive (recommended fallback)")
		score -= 3
	}

	if _, ok := directives["script-src"]; !ok {
		issues = append(issues, "Consider adding 'script-src' directive for script control")
		score -= 2
	}

	for _, token := range directives["script-src"] {
		switch token {
		case "data:":
			issues = append(issues, "Script sources allow data: URIs which can enable CSP bypasses")
			score -= 2
		case "blob:":
			issues = append(issues, "Script sources allow blob: URLs which may enable CSP bypasses")
			score -= 2
		case "filesystem:":
			issues = append(issues, "Script sources allow filesystem: URLs which may enable CSP bypasses")
			score -= 2
		}
		if strings.HasPrefix(token, "http:") {
			issues = append(issues, "Script sources allow insecure http scheme")
			score -= 2
		}
	}

	for _, token := range directives["style-src"] {
		if token == "data:" {
			issues = append(issues, "Style sources allow data: URIs which may allow inline style injection")
			score--
		}
	}

	if _, ok := directives["object-src"]; !ok && !hasSelfDefault(directives) {
		issues = append(issues, "Plugins are unrestricted; add \"object-src 'none'\"")
		score--
	}

	if score < 0 {
		score = 0
	}

	recommendation := "CSP is present with good configuration"
	if len(issues) > 0 {
		recommendation = "Review and strengthen your Content-Security-Policy"
	}

	return Analysis{
		Score:          score,
		MaxScore:       lintMaxScore,
		Grade:          calculateGrade(score, lintMaxScore),
		Issues:         issues,
		Recommendation: recommendation,
		Directives:     directives,
	}
}

// parseDirectives splits a policy on ';' and maps each directive to its sources.
func parseDirectives(value string) map[string][]string {
	result := make(map[string][]string)
	for _, part := range strings.Split(value, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 1 {
			result[fields[0]] = fields[1:]
		} else {
			result[fields[0]] = []string{}
		}
	}
	return result
}

func hasWildcard(directives map[string][]string) bool {
	for _, tokens := range directives {
		for _, token := range tokens {
			if token == "*" || strings.HasPrefix(token, "*.") || strings.Contains(token, "://*") {
				return true
			}
		}
	}
	return false
}

func hasSelfDefault(directives map[string][]string) bool {
	for _, token := range directives["default-src"] {
		if token == "'self'" || token == "'none'" {
			return true
		}
	}
	return false
}

func calculateGrade(score, maxScore int) string {
	percentage := float64(score) / float64(maxScore) * 100

	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	case percentage >= 50:
		return "E"
	default:
		return "F"
	}
}
