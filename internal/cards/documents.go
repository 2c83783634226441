// Package cards builds the adaptive card documents the bot sends: the rating
// card posted in a meeting chat and the report card delivered to its owner.
package cards

import (
	"encoding/json"
	"fmt"
	"strings"

	"feedback-bot/internal/teams"
)

// Kind identifies a document variant
type Kind string

const (
	KindRating Kind = "rating"
	KindReport Kind = "report"
)

// CommentInputID is the id of the free text input on the rating card
const CommentInputID = "comment"

// Document is a card the bot knows how to render
type Document interface {
	Kind() Kind
	Card() AdaptiveCard
}

// RatingCard asks meeting participants for a 1-5 rating and an optional comment
type RatingCard struct {
	RequesterName string
}

func (RatingCard) Kind() Kind { return KindRating }

func (r RatingCard) Card() AdaptiveCard {
	columns := make([]Column, StarCount)
	for i := range columns {
		rating := i + 1
		action := newSubmitAction("", map[string]int{"rating": rating})
		columns[i] = Column{
			Type:  "Column",
			Width: "auto",
			Items: []Element{Image{
				Type:         "Image",
				URL:          GlyphEmpty.URL(),
				AltText:      fmt.Sprintf("%d star", rating),
				Size:         "Small",
				SelectAction: &action,
			}},
		}
	}

	title := newTextBlock(fmt.Sprintf("%s would like your feedback on this meeting", r.RequesterName))
	title.Size = "Medium"
	title.Weight = "Bolder"

	hint := newTextBlock("Pick a star to send your rating. Your comment is sent along with it.")
	hint.IsSubtle = true

	return newAdaptiveCard(
		title,
		hint,
		InputText{
			Type:        "Input.Text",
			ID:          CommentInputID,
			Placeholder: "Leave a comment (optional)",
			IsMultiline: true,
			MaxLength:   1000,
		},
		ColumnSet{Type: "ColumnSet", Columns: columns},
	)
}

// ReportCard summarises every rating received for one rating card
type ReportCard struct {
	ConversationName string
	Respondents      int
	Comments         []string
	Stars            [StarCount]Glyph
}

func (ReportCard) Kind() Kind { return KindReport }

func (r ReportCard) Card() AdaptiveCard {
	title := newTextBlock(fmt.Sprintf("Feedback for %s", r.ConversationName))
	title.Size = "Large"
	title.Weight = "Bolder"

	respondents := newTextBlock(fmt.Sprintf("%d %s received", r.Respondents, plural(r.Respondents, "feedback", "feedbacks")))
	respondents.IsSubtle = true
	respondents.Spacing = "None"

	commentsTitle := newTextBlock(fmt.Sprintf("%d %s", len(r.Comments), plural(len(r.Comments), "comment", "comments")))
	commentsTitle.Weight = "Bolder"

	commentItems := make([]Element, 0, len(r.Comments))
	for _, comment := range r.Comments {
		commentItems = append(commentItems, newTextBlock(comment))
	}

	ratingTitle := newTextBlock("Average rating")
	ratingTitle.Weight = "Bolder"

	columns := make([]Column, len(r.Stars))
	for i, glyph := range r.Stars {
		columns[i] = Column{
			Type:  "Column",
			Width: "stretch",
			Items: []Element{Image{
				Type:                "Image",
				URL:                 glyph.URL(),
				AltText:             glyph.String() + " star",
				Size:                "Small",
				HorizontalAlignment: "Center",
			}},
		}
	}

	return newAdaptiveCard(
		title,
		respondents,
		commentsTitle,
		Container{Type: "Container", Items: commentItems},
		ratingTitle,
		ColumnSet{Type: "ColumnSet", Columns: columns},
	)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Attachment wraps doc for sending in an activity
func Attachment(doc Document) teams.Attachment {
	return teams.Attachment{
		ContentType: teams.ContentTypeAdaptiveCard,
		Content:     doc.Card(),
	}
}

// RatingSubmission is the value posted back when a participant picks a star
type RatingSubmission struct {
	Rating  int
	Comment *string
}

// ParseSubmission recognises a rating card submission. ok is false for any
// other value. Blank comments are dropped.
func ParseSubmission(value json.RawMessage) (submission RatingSubmission, ok bool) {
	if len(value) == 0 {
		return RatingSubmission{}, false
	}

	var raw struct {
		Rating  *int    `json:"rating"`
		Comment *string `json:"comment"`
	}
	if err := json.Unmarshal(value, &raw); err != nil || raw.Rating == nil {
		return RatingSubmission{}, false
	}

	submission.Rating = *raw.Rating
	if raw.Comment != nil {
		if comment := strings.TrimSpace(*raw.Comment); comment != "" {
			submission.Comment = &comment
		}
	}
	return submission, true
}
