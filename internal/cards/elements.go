package cards

// Element is an item that may appear in a card body or container
type Element interface {
	isElement()
}

const (
	schemaURL   = "http://adaptivecards.io/schemas/adaptive-card.json"
	cardVersion = "1.5"
)

// AdaptiveCard is the root of an adaptive card document
type AdaptiveCard struct {
	Type    string         `json:"type"`
	Schema  string         `json:"$schema"`
	Version string         `json:"version"`
	Body    []Element      `json:"body"`
	Actions []SubmitAction `json:"actions,omitempty"`
}

func newAdaptiveCard(body ...Element) AdaptiveCard {
	return AdaptiveCard{
		Type:    "AdaptiveCard",
		Schema:  schemaURL,
		Version: cardVersion,
		Body:    body,
	}
}

type TextBlock struct {
	Type                string `json:"type"`
	Text                string `json:"text"`
	Wrap                bool   `json:"wrap,omitempty"`
	Size                string `json:"size,omitempty"`
	Weight              string `json:"weight,omitempty"`
	IsSubtle            bool   `json:"isSubtle,omitempty"`
	HorizontalAlignment string `json:"horizontalAlignment,omitempty"`
	Spacing             string `json:"spacing,omitempty"`
}

func (TextBlock) isElement() {}

func newTextBlock(text string) TextBlock {
	return TextBlock{Type: "TextBlock", Text: text, Wrap: true}
}

type Image struct {
	Type                string        `json:"type"`
	URL                 string        `json:"url"`
	AltText             string        `json:"altText,omitempty"`
	Size                string        `json:"size,omitempty"`
	HorizontalAlignment string        `json:"horizontalAlignment,omitempty"`
	SelectAction        *SubmitAction `json:"selectAction,omitempty"`
}

func (Image) isElement() {}

type Container struct {
	Type      string    `json:"type"`
	Items     []Element `json:"items"`
	Separator bool      `json:"separator,omitempty"`
	Spacing   string    `json:"spacing,omitempty"`
}

func (Container) isElement() {}

type Column struct {
	Type  string    `json:"type"`
	Width string    `json:"width,omitempty"`
	Items []Element `json:"items"`
}

type ColumnSet struct {
	Type    string   `json:"type"`
	Columns []Column `json:"columns"`
}

func (ColumnSet) isElement() {}

type InputText struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder,omitempty"`
	IsMultiline bool   `json:"isMultiline,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
}

func (InputText) isElement() {}

// SubmitAction posts its data, merged with the card's input values, back to the bot
type SubmitAction struct {
	Type  string      `json:"type"`
	Title string      `json:"title,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

func newSubmitAction(title string, data interface{}) SubmitAction {
	return SubmitAction{Type: "Action.Submit", Title: title, Data: data}
}
