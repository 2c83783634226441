package feedback

import (
	"strings"

	"feedback-bot/internal/cards"
	"feedback-bot/internal/storage"
)

// Aggregate summarises the entries of one card. It is always rebuilt from
// the full entry set and never updated incrementally.
type Aggregate struct {
	Count    int
	Mean     float64
	Comments []string
}

// ComputeAggregate derives the aggregate of entries, keeping non-blank
// comments in entry order.
func ComputeAggregate(entries []storage.Entry) Aggregate {
	agg := Aggregate{Count: len(entries), Comments: []string{}}
	if len(entries) == 0 {
		return agg
	}

	sum := 0
	for _, entry := range entries {
		sum += entry.Rating
		if entry.Comment != nil && strings.TrimSpace(*entry.Comment) != "" {
			agg.Comments = append(agg.Comments, *entry.Comment)
		}
	}
	agg.Mean = float64(sum) / float64(len(entries))
	return agg
}

// Stars returns the glyph row for the mean rating
func (a Aggregate) Stars() [cards.StarCount]cards.Glyph {
	return cards.StarsFor(a.Mean)
}

// Report renders the aggregate as a report card
func (a Aggregate) Report(conversationName string) cards.ReportCard {
	return cards.ReportCard{
		ConversationName: conversationName,
		Respondents:      a.Count,
		Comments:         a.Comments,
		Stars:            a.Stars(),
	}
}
