// Package tailoring rewrites a base resume for a job posting and rejects
// rewrites that introduce facts absent from the original.
package tailoring

import (
	"regexp"
	"sort"
	"strings"
)

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// DefaultSkillVocabulary lists skills whose appearance is checked against the original resume.
var DefaultSkillVocabulary = []string{
	"go", "golang", "python", "java", "kotlin", "scala", "rust", "c++", "c#", "typescript", "javascript", "ruby", "php", "swift",
	"react", "angular", "vue", "node.js", "django", "flask", "spring", "rails",
	"postgres", "postgresql", "mysql", "mongodb", "redis", "cassandra", "elasticsearch", "kafka", "rabbitmq", "spark", "hadoop", "snowflake",
	"aws", "gcp", "azure", "kubernetes", "docker", "terraform", "ansible",
	"graphql", "grpc", "machine learning", "pytorch", "tensorflow",
}

// Violations returns the facts in tailored that do not appear in original:
// calendar years and skills from vocabulary. Matching is case-insensitive.
func Violations(original, tailored string, vocabulary []string) []string {
	origLower := strings.ToLower(original)
	tailLower := strings.ToLower(tailored)

	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	origYears := make(map[string]bool)
	for _, y := range yearRe.FindAllString(original, -1) {
		origYears[y] = true
	}
	for _, y := range yearRe.FindAllString(tailored, -1) {
		if !origYears[y] {
			add("year " + y)
		}
	}

	for _, skill := range vocabulary {
		skill = strings.ToLower(strings.TrimSpace(skill))
		if skill == "" {
			continue
		}
		if containsTerm(tailLower, skill) && !containsTerm(origLower, skill) {
			add("skill " + skill)
		}
	}

	sort.Strings(out)
	return out
}

// containsTerm matches term in text at word boundaries. Terms with symbols
// (c++, node.js) are matched literally.
func containsTerm(text, term string) bool {
	if strings.IndexFunc(term, isWordSymbol) >= 0 {
		return strings.Contains(text, term)
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
	return re.MatchString(text)
}

func isWordSymbol(r rune) bool {
	return r == '+' || r == '#' || r == '.'
}
