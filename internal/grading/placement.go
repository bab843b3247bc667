package grading

import (
	"fmt"
	"sort"
	"strings"
)

// Level is a proficiency tier. Values are identical to course levels so the
// enrollment filter can compare them directly.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

const (
	intermediateThreshold = 50.0
	advancedThreshold     = 80.0
	strengthThreshold     = 75.0
	weaknessThreshold     = 50.0
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// ParseLevel normalizes a level string.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(s)))
	if !level.Valid() {
		return "", configError("level", "unknown level %q", s)
	}
	return level, nil
}

// LevelForScore maps an overall percentage to a level without rounding.
func LevelForScore(score float64) Level {
	switch {
	case score >= advancedThreshold:
		return LevelAdvanced
	case score >= intermediateThreshold:
		return LevelIntermediate
	default:
		return LevelBeginner
	}
}

// CanEnroll reports whether a learner placed at studentLevel may enroll in a
// course at courseLevel. Only an exact match is allowed; an unplaced learner
// cannot enroll anywhere.
func CanEnroll(studentLevel, courseLevel Level) bool {
	return studentLevel.Valid() && studentLevel == courseLevel
}

// PlacementOutcome is produced once per completed placement test.
type PlacementOutcome struct {
	PercentageScore  float64                `json:"percentage_score"`
	CategoryScores   map[string]ScoreBucket `json:"category_scores"`
	SkillScores      map[string]ScoreBucket `json:"skill_scores"`
	DifficultyScores map[string]ScoreBucket `json:"difficulty_scores"`
	AssignedLevel    Level                  `json:"assigned_level"`
	Strengths        []string               `json:"strengths"`
	Weaknesses       []string               `json:"weaknesses"`
	Feedback         string                 `json:"feedback"`
}

// AssignLevel derives the placement outcome. The overall percentage alone
// drives the level; category scores only label strengths and weaknesses.
func AssignLevel(breakdown Breakdown, percentageScore float64) PlacementOutcome {
	level := LevelForScore(percentageScore)
	strengths, weaknesses := classify(breakdown.Categories)

	return PlacementOutcome{
		PercentageScore:  percentageScore,
		CategoryScores:   breakdown.Categories,
		SkillScores:      breakdown.Skills,
		DifficultyScores: breakdown.Difficulties,
		AssignedLevel:    level,
		Strengths:        strengths,
		Weaknesses:       weaknesses,
		Feedback:         placementFeedback(level, percentageScore, strengths, weaknesses),
	}
}

// ScorePlacement grades a placement test and assigns a level in one step.
func ScorePlacement(questions []Question, answers []Answer) (PlacementOutcome, GradingOutcome, error) {
	outcome, err := Grade(questions, answers, 0)
	if err != nil {
		return PlacementOutcome{}, GradingOutcome{}, err
	}
	if outcome.TotalPoints <= 0 {
		return PlacementOutcome{}, GradingOutcome{}, configError("total_points", "placement test has no points")
	}

	percentage := outcome.EarnedPoints / outcome.TotalPoints * 100
	return AssignLevel(BuildBreakdown(questions, outcome), percentage), outcome, nil
}

type rankedCategory struct {
	name       string
	percentage float64
}

func classify(categories map[string]ScoreBucket) ([]string, []string) {
	var strong, weak []rankedCategory
	for _, name := range SortedKeys(categories) {
		bucket := categories[name]
		if bucket.Total <= 0 {
			continue
		}
		pct := bucket.Earned / bucket.Total * 100
		switch {
		case pct >= strengthThreshold:
			strong = append(strong, rankedCategory{name, pct})
		case pct < weaknessThreshold:
			weak = append(weak, rankedCategory{name, pct})
		}
	}

	sort.SliceStable(strong, func(i, j int) bool { return strong[i].percentage > strong[j].percentage })
	sort.SliceStable(weak, func(i, j int) bool { return weak[i].percentage < weak[j].percentage })

	return names(strong), names(weak)
}

func names(ranked []rankedCategory) []string {
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.name)
	}
	return out
}

func placementFeedback(level Level, score float64, strengths, weaknesses []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have been placed at the %s level with a score of %.1f%%.", level, score)
	if len(strengths) > 0 {
		fmt.Fprintf(&b, " Your strongest area is %s.", strengths[0])
	}
	if len(weaknesses) > 0 {
		fmt.Fprintf(&b, " Focus next on %s.", weaknesses[0])
	}
	if len(strengths) == 0 && len(weaknesses) == 0 {
		b.WriteString(" Your results were consistent across all areas.")
	}
	return b.String()
}
