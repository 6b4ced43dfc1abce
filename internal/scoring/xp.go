package scoring

import (
	"math"

	"github.com/satchel-app/satchel/internal/schema"
)

// tier holds the XP constants for one difficulty level.
type tier struct {
	baseXP     float64
	multiplier float64
}

var tiers = map[string]tier{
	schema.DifficultyEasy:     {baseXP: 50, multiplier: 1.0},
	schema.DifficultyMedium:   {baseXP: 100, multiplier: 1.5},
	schema.DifficultyHard:     {baseXP: 150, multiplier: 2.0},
	schema.DifficultyVeryHard: {baseXP: 200, multiplier: 2.5},
}

// timeBonusWindow is the number of seconds within which finishing
// earlier earns a speed bonus. Attempts slower than this get no bonus.
const timeBonusWindow = 300.0

// AwardXP computes the experience points for a graded attempt at the
// given difficulty. The award rewards accuracy (base XP scaled by the
// exact percentage) plus a speed bonus that decays linearly over the
// bonus window and saturates at zero. An unknown difficulty falls back
// to the medium tier.
func AwardXP(result Result, difficulty string) int {
	t, ok := tiers[difficulty]
	if !ok {
		t = tiers[schema.DifficultyMedium]
	}

	accuracy := t.baseXP * (result.Percentage / 100)

	remaining := (timeBonusWindow - float64(result.TimeTaken)) / timeBonusWindow
	if remaining < 0 {
		remaining = 0
	}
	bonus := remaining * 5 * t.multiplier

	return int(math.Round(accuracy + bonus))
}
