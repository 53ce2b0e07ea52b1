package skills

import (
	"sort"
	"strings"
)

// SkillGap is a requirement the person does not yet meet
type SkillGap struct {
	SkillName     string  `json:"skill_name"`
	CurrentLevel  float64 `json:"current_level"`
	RequiredLevel float64 `json:"required_level"`
	GapSize       float64 `json:"gap_size"`
}

// AnalyzeGaps lists requirements where the person is below the required level,
// largest gap first. A skill with no score counts as level 0.
func AnalyzeGaps(scores []SkillScore, required map[string]float64) []SkillGap {
	levels := levelIndex(scores)

	gaps := make([]SkillGap, 0, len(required))
	for name, req := range required {
		current := levels[skillKey(name)]
		if current >= req {
			continue
		}
		gaps = append(gaps, SkillGap{
			SkillName:     name,
			CurrentLevel:  current,
			RequiredLevel: req,
			GapSize:       req - current,
		})
	}

	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].GapSize != gaps[j].GapSize {
			return gaps[i].GapSize > gaps[j].GapSize
		}
		return gaps[i].SkillName < gaps[j].SkillName
	})
	return gaps
}

// Priority ranks a development recommendation
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// maxDevelopmentRecommendations caps RecommendDevelopment output
const maxDevelopmentRecommendations = 5

// DevelopmentRecommendation suggests catching up on a skill the team is stronger in
type DevelopmentRecommendation struct {
	SkillName    string   `json:"skill_name"`
	CurrentLevel float64  `json:"current_level"`
	TargetLevel  float64  `json:"target_level"`
	Gap          float64  `json:"gap"`
	Priority     Priority `json:"priority"`
}

// RecommendDevelopment compares a person against the team average for every
// skill anyone on the team holds. Skills more than one level below average are
// returned, biggest gap first, at most five.
func RecommendDevelopment(person []SkillScore, team []PersonSkills) []DevelopmentRecommendation {
	type agg struct {
		name  string
		sum   float64
		count int
	}
	averages := make(map[string]*agg)
	for _, member := range team {
		for _, s := range member.Skills {
			k := skillKey(s.SkillName)
			a, ok := averages[k]
			if !ok {
				a = &agg{name: s.SkillName}
				averages[k] = a
			}
			a.sum += s.Level
			a.count++
		}
	}

	levels := levelIndex(person)
	recs := make([]DevelopmentRecommendation, 0)
	for k, a := range averages {
		avg := a.sum / float64(a.count)
		current := levels[k]
		if current >= avg-1 {
			continue
		}
		gap := avg - current
		priority := PriorityMedium
		if gap > 2 {
			priority = PriorityHigh
		}
		recs = append(recs, DevelopmentRecommendation{
			SkillName:    a.name,
			CurrentLevel: current,
			TargetLevel:  avg,
			Gap:          gap,
			Priority:     priority,
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Gap != recs[j].Gap {
			return recs[i].Gap > recs[j].Gap
		}
		return recs[i].SkillName < recs[j].SkillName
	})
	if len(recs) > maxDevelopmentRecommendations {
		recs = recs[:maxDevelopmentRecommendations]
	}
	return recs
}

// TeamMatrix is a skills-by-members grid of levels. Levels[i][j] is the level
// of Members[j] in Skills[i], 0 when the member has no score.
type TeamMatrix struct {
	Skills  []string    `json:"skills"`
	Members []string    `json:"members"`
	Levels  [][]float64 `json:"levels"`
}

// BuildTeamMatrix lays out team skill levels with skills and members sorted
func BuildTeamMatrix(team []PersonSkills) TeamMatrix {
	skillNames := make(map[string]string)
	members := make([]string, 0, len(team))
	byMember := make(map[string]map[string]float64, len(team))

	for _, member := range team {
		if _, seen := byMember[member.PersonID]; !seen {
			members = append(members, member.PersonID)
		}
		byMember[member.PersonID] = levelIndex(member.Skills)
		for _, s := range member.Skills {
			k := skillKey(s.SkillName)
			if _, ok := skillNames[k]; !ok {
				skillNames[k] = strings.TrimSpace(s.SkillName)
			}
		}
	}
	sort.Strings(members)

	keys := make([]string, 0, len(skillNames))
	for k := range skillNames {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	matrix := TeamMatrix{
		Skills:  make([]string, len(keys)),
		Members: members,
		Levels:  make([][]float64, len(keys)),
	}
	for i, k := range keys {
		matrix.Skills[i] = skillNames[k]
		row := make([]float64, len(members))
		for j, m := range members {
			row[j] = byMember[m][k]
		}
		matrix.Levels[i] = row
	}
	return matrix
}

// LevelOf returns the person's level in skill, 0 if absent
func LevelOf(scores []SkillScore, skill string) (float64, bool) {
	k := skillKey(skill)
	for _, s := range scores {
		if skillKey(s.SkillName) == k {
			return s.Level, true
		}
	}
	return 0, false
}

func levelIndex(scores []SkillScore) map[string]float64 {
	idx := make(map[string]float64, len(scores))
	for _, s := range scores {
		idx[skillKey(s.SkillName)] = s.Level
	}
	return idx
}
