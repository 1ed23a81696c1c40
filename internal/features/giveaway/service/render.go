package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

// Post texts are plain and unlocalised; presentation belongs to the gateway.

func renderActive(g *models.ActiveGiveaway, p models.Preset, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎁 %s\n", g.Prize)
	fmt.Fprintf(&b, "Winners: %d\n", g.WinnerCount)
	fmt.Fprintf(&b, "Ends in: %s\n", g.Remaining(now).Round(time.Second))
	if emoji := p.Affordance(); emoji != "" {
		fmt.Fprintf(&b, "React with %s to enter", emoji)
	}
	return b.String()
}

func renderFinished(g *models.ActiveGiveaway, winners []int64) string {
	if len(winners) == 0 {
		return fmt.Sprintf("🎁 %s\nNo winners: nobody entered.", g.Prize)
	}
	return fmt.Sprintf("🎁 %s\nWinners: %s", g.Prize, mentions(winners))
}

func renderPing(g *models.ActiveGiveaway, winners []int64) string {
	return fmt.Sprintf("%s you won %s!", mentions(winners), g.Prize)
}

func mentions(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("[user](tg://user?id=%d)", id)
	}
	return strings.Join(parts, ", ")
}
