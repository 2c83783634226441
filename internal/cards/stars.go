package cards

import "encoding/base64"

// Glyph is the fill state of one star in a rating row
type Glyph int

const (
	GlyphEmpty Glyph = iota
	GlyphHalf
	GlyphFull
)

// StarCount is the number of stars in a rating row
const StarCount = 5

func (g Glyph) String() string {
	switch g {
	case GlyphFull:
		return "full"
	case GlyphHalf:
		return "half"
	default:
		return "empty"
	}
}

// URL returns the image for g as a data URI
func (g Glyph) URL() string {
	switch g {
	case GlyphFull:
		return fullStarURL
	case GlyphHalf:
		return halfStarURL
	default:
		return emptyStarURL
	}
}

// StarsFor maps a mean rating onto a row of glyphs. Walking left to right, a
// remainder of at least 1 draws a full star, at least 0.5 a half star and
// anything less an empty one; each star consumes one point.
func StarsFor(mean float64) [StarCount]Glyph {
	var stars [StarCount]Glyph
	remaining := mean
	for i := range stars {
		switch {
		case remaining >= 1:
			stars[i] = GlyphFull
		case remaining >= 0.5:
			stars[i] = GlyphHalf
		default:
			stars[i] = GlyphEmpty
		}
		remaining--
	}
	return stars
}

const starPath = `M12 2l3.09 6.26L22 9.27l-5 4.87 1.18 6.88L12 17.77l-6.18 3.25L7 14.14 2 9.27l6.91-1.01L12 2z`

var (
	fullStarURL  = svgDataURI(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="` + starPath + `" fill="#FFB900" stroke="#FFB900" stroke-width="1"/></svg>`)
	halfStarURL  = svgDataURI(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><defs><linearGradient id="h"><stop offset="50%" stop-color="#FFB900"/><stop offset="50%" stop-color="#FFFFFF" stop-opacity="0"/></linearGradient></defs><path d="` + starPath + `" fill="url(#h)" stroke="#FFB900" stroke-width="1"/></svg>`)
	emptyStarURL = svgDataURI(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="` + starPath + `" fill="none" stroke="#8A8886" stroke-width="1"/></svg>`)
)

func svgDataURI(svg string) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
