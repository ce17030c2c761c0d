package report

import (
	"strings"
	"unicode/utf8"
)

// Layout holds page geometry and typography, in PDF points.
type Layout struct {
	PageWidth    float64
	PageHeight   float64
	TopMargin    float64
	BottomMargin float64
	LeftMargin   float64

	// WrapWidth is the maximum number of characters per body line.
	WrapWidth int

	MaxImageWidth  float64
	MaxImageHeight float64

	LabelSize       float64
	BodySize        float64
	CaptionSize     float64
	PlaceholderSize float64
	TitleSize       float64

	LabelGap      float64
	LineHeight    float64
	EntryGap      float64
	CaptionGap    float64
	ScreenshotGap float64
}

// DefaultLayout is an A4 page with 80 character body lines and screenshots
// bounded by 400x300.
func DefaultLayout() Layout {
	return Layout{
		PageWidth:    595,
		PageHeight:   842,
		TopMargin:    60,
		BottomMargin: 60,
		LeftMargin:   50,

		WrapWidth: 80,

		MaxImageWidth:  400,
		MaxImageHeight: 300,

		LabelSize:       14,
		BodySize:        11,
		CaptionSize:     10,
		PlaceholderSize: 12,
		TitleSize:       18,

		LabelGap:      30,
		LineHeight:    18,
		EntryGap:      30,
		CaptionGap:    15,
		ScreenshotGap: 40,
	}
}

func (l Layout) withDefaults() Layout {
	def := DefaultLayout()
	fill := func(v *float64, d float64) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&l.PageWidth, def.PageWidth)
	fill(&l.PageHeight, def.PageHeight)
	fill(&l.TopMargin, def.TopMargin)
	fill(&l.BottomMargin, def.BottomMargin)
	fill(&l.LeftMargin, def.LeftMargin)
	fill(&l.MaxImageWidth, def.MaxImageWidth)
	fill(&l.MaxImageHeight, def.MaxImageHeight)
	fill(&l.LabelSize, def.LabelSize)
	fill(&l.BodySize, def.BodySize)
	fill(&l.CaptionSize, def.CaptionSize)
	fill(&l.PlaceholderSize, def.PlaceholderSize)
	fill(&l.TitleSize, def.TitleSize)
	fill(&l.LabelGap, def.LabelGap)
	fill(&l.LineHeight, def.LineHeight)
	fill(&l.EntryGap, def.EntryGap)
	fill(&l.CaptionGap, def.CaptionGap)
	fill(&l.ScreenshotGap, def.ScreenshotGap)
	if l.WrapWidth <= 0 {
		l.WrapWidth = def.WrapWidth
	}
	return l
}

// contentBottom is the lowest baseline allowed on a page.
func (l Layout) contentBottom() float64 {
	return l.PageHeight - l.BottomMargin
}

// usableHeight is the vertical room between the first and last baseline.
func (l Layout) usableHeight() float64 {
	return l.contentBottom() - l.TopMargin
}

// scaleImage fits w x h into the bounding box without upscaling. The box is
// shrunk further when it would not fit a page together with its label and
// caption.
func (l Layout) scaleImage(w, h float64) (float64, float64) {
	maxW := l.MaxImageWidth
	if avail := l.PageWidth - 2*l.LeftMargin; maxW > avail {
		maxW = avail
	}
	maxH := l.MaxImageHeight
	if avail := l.usableHeight() - l.LabelGap - l.CaptionGap; maxH > avail {
		maxH = avail
	}

	scale := min(maxW/w, maxH/h, 1)
	return w * scale, h * scale
}

// wrapText splits text into lines of at most width characters, breaking on
// whitespace. Words longer than width are split.
func wrapText(text string, width int) []string {
	var (
		lines []string
		line  string
	)
	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > width {
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			runes := []rune(word)
			lines = append(lines, string(runes[:width]))
			word = string(runes[width:])
		}
		if word == "" {
			continue
		}
		if line == "" {
			line = word
			continue
		}
		if utf8.RuneCountInString(line)+1+utf8.RuneCountInString(word) <= width {
			line += " " + word
			continue
		}
		lines = append(lines, line)
		line = word
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
