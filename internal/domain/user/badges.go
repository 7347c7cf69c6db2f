package user

// ══════════════════════════════════════════════════════════════════════════════
// BADGE ENGINE
// Pure threshold evaluator. Badges derive from counters, are granted once,
// and are never removed even if a counter later decreases.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeID identifies a permanent achievement flag.
type BadgeID string

// Badge IDs grouped by category. Thresholds are fixed product constants.
const (
	BadgeFirstCheckIn      BadgeID = "checkins_1"
	BadgeCheckInRegular    BadgeID = "checkins_10"
	BadgeCheckInDevoted    BadgeID = "checkins_50"
	BadgeCheckInCentury    BadgeID = "checkins_100"
	BadgeCheckInYear       BadgeID = "checkins_365"

	BadgeFirstBestie   BadgeID = "besties_1"
	BadgeBestieCircle  BadgeID = "besties_5"
	BadgeBestieCrowd   BadgeID = "besties_10"
	BadgeBestieNetwork BadgeID = "besties_25"

	BadgeStreakSpark   BadgeID = "streak_3"
	BadgeStreakWeek    BadgeID = "streak_7"
	BadgeStreakMonth   BadgeID = "streak_30"
	BadgeStreakCentury BadgeID = "streak_100"
	BadgeStreakYear    BadgeID = "streak_365"
)

// badgeRule maps a counter threshold to a badge.
type badgeRule struct {
	badge     BadgeID
	threshold int
	counter   func(Stats) int
}

var badgeRules = []badgeRule{
	{BadgeFirstCheckIn, 1, completedCheckIns},
	{BadgeCheckInRegular, 10, completedCheckIns},
	{BadgeCheckInDevoted, 50, completedCheckIns},
	{BadgeCheckInCentury, 100, completedCheckIns},
	{BadgeCheckInYear, 365, completedCheckIns},

	{BadgeFirstBestie, 1, totalBesties},
	{BadgeBestieCircle, 5, totalBesties},
	{BadgeBestieCrowd, 10, totalBesties},
	{BadgeBestieNetwork, 25, totalBesties},

	{BadgeStreakSpark, 3, longestStreak},
	{BadgeStreakWeek, 7, longestStreak},
	{BadgeStreakMonth, 30, longestStreak},
	{BadgeStreakCentury, 100, longestStreak},
	{BadgeStreakYear, 365, longestStreak},
}

func completedCheckIns(s Stats) int { return s.CompletedCheckIns }
func totalBesties(s Stats) int      { return s.TotalBesties }

// longestStreak is the streak counter badges key on: it only ever grows, so
// streak badges stay monotonic even after a streak reset.
func longestStreak(s Stats) int { return s.LongestStreak }

// BadgesFor evaluates the fixed thresholds against the given counters.
// Pure and deterministic: same counters in, same badge set out.
func BadgesFor(stats Stats) []BadgeID {
	earned := make([]BadgeID, 0, len(badgeRules))
	for _, rule := range badgeRules {
		if rule.counter(stats) >= rule.threshold {
			earned = append(earned, rule.badge)
		}
	}
	return earned
}

// MergeBadges unions already-granted badges with a fresh evaluation,
// preserving the existing order and appending only genuinely new badges.
// Re-evaluating with unchanged counters returns an identical set: the merge
// is idempotent and never shrinks or duplicates.
func MergeBadges(existing, evaluated []BadgeID) (merged []BadgeID, added []BadgeID) {
	merged = make([]BadgeID, len(existing))
	copy(merged, existing)

	have := make(map[BadgeID]struct{}, len(existing))
	for _, b := range existing {
		have[b] = struct{}{}
	}

	for _, b := range evaluated {
		if _, ok := have[b]; ok {
			continue
		}
		have[b] = struct{}{}
		merged = append(merged, b)
		added = append(added, b)
	}
	return merged, added
}
