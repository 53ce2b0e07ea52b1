package allocation

import (
	"regexp"
	"strings"
)

type requirementRule struct {
	skill    string
	keywords []*regexp.Regexp
}

// requirementRules is the keyword table used to guess the skills a task needs
// when the tracker supplied none
var requirementRules = buildRules([]struct {
	skill    string
	keywords []string
}{
	{"Python", []string{"python", "django", "flask", "fastapi"}},
	{"JavaScript", []string{"javascript", "js", "node", "express"}},
	{"React", []string{"react", "jsx", "frontend"}},
	{"TypeScript", []string{"typescript", "ts"}},
	{"SQL", []string{"sql", "database", "query", "postgresql", "mysql"}},
	{"Docker", []string{"docker", "container", "deployment"}},
	{"AWS", []string{"aws", "cloud", "s3", "ec2"}},
	{"Testing", []string{"test", "testing", "unit test", "integration"}},
	{"API", []string{"api", "rest", "endpoint", "service"}},
	{"UI/UX", []string{"ui", "ux", "design", "interface"}},
})

func buildRules(table []struct {
	skill    string
	keywords []string
}) []requirementRule {
	rules := make([]requirementRule, 0, len(table))
	for _, row := range table {
		r := requirementRule{skill: row.skill}
		for _, k := range row.keywords {
			parts := strings.Fields(k)
			for i, p := range parts {
				parts[i] = regexp.QuoteMeta(p)
			}
			r.keywords = append(r.keywords, regexp.MustCompile(`\b`+strings.Join(parts, `\s+`)+`\b`))
		}
		rules = append(rules, r)
	}
	return rules
}

// InferRequirements guesses required skills from task text. Each skill scores
// one point per distinct keyword present, bounded to [1,5]. The result is a
// best-effort hint and not authoritative.
func InferRequirements(title, description string) map[string]float64 {
	text := strings.ToLower(title + " " + description)

	out := make(map[string]float64)
	for _, r := range requirementRules {
		hits := 0
		for _, re := range r.keywords {
			if re.MatchString(text) {
				hits++
			}
		}
		if hits > 0 {
			out[r.skill] = float64(min(5, max(1, hits)))
		}
	}
	return out
}
