package engine

import "fmt"

const (
	MessageNoControl        = "no control variant configured for this test"
	MessageInsufficientData = "insufficient data for a significance test"
	MessageContinueTesting  = "No statistically significant winner yet, continue testing"
)

// Recommend turns the evaluation outcome into one human-readable line.
func Recommend(winner *Winner, hasEnoughData bool, totalClicks, target int64) string {
	switch {
	case winner != nil && winner.HasLift:
		return fmt.Sprintf("Variant %s is statistically significantly better than control (lift %+.2f%%)",
			winner.VariantName, winner.Lift)
	case winner != nil:
		return fmt.Sprintf("Variant %s is statistically significantly better than control (control has no conversions)",
			winner.VariantName)
	case hasEnoughData:
		return MessageContinueTesting
	}

	remaining := target - totalClicks
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("Need %d more samples (current: %d, target: %d)", remaining, totalClicks, target)
}
