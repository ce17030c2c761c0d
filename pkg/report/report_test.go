package report

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qaflow/pkg/archive"
	"qaflow/pkg/timeline"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h), nil))
	return buf.Bytes()
}

func newRenderer() *Renderer {
	return New(DefaultLayout(), zerolog.Nop())
}

func blocks(doc *Document) []Block {
	var out []Block
	for _, p := range doc.Pages {
		out = append(out, p.Blocks...)
	}
	return out
}

func TestRender_ProducesPDF(t *testing.T) {
	doc, err := newRenderer().Render(timeline.Timeline{{Kind: timeline.KindLog, Content: "hello"}}, nil, Options{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Bytes, []byte("%PDF-")))
	require.Len(t, doc.Pages, 1)
	require.Len(t, doc.Pages[0].Blocks, 1)
	assert.Equal(t, BlockLog, doc.Pages[0].Blocks[0].Kind)
}

func TestRender_EmptyTimeline(t *testing.T) {
	doc, err := newRenderer().Render(nil, nil, Options{})
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 1)
	assert.Empty(t, doc.Pages[0].Blocks)
	assert.NotEmpty(t, doc.Bytes)
}

func TestRender_CaseInsensitiveMatchEmbedsImage(t *testing.T) {
	assets := archive.Assets{{Filename: "STEP1.png", Content: pngBytes(t, 800, 600), Format: archive.FormatPNG}}
	tl := timeline.Timeline{{Kind: timeline.KindScreenshot, Content: "step1.png"}}

	doc, err := newRenderer().Render(tl, assets, Options{})
	require.NoError(t, err)

	got := blocks(doc)
	require.Len(t, got, 1)
	assert.Equal(t, BlockScreenshot, got[0].Kind)
	assert.Equal(t, "STEP1.png", got[0].Text)

	// label gap + 300pt image + caption gap
	l := DefaultLayout()
	assert.InDelta(t, l.LabelSize+l.LabelGap+300+l.CaptionGap, got[0].Bottom-got[0].Top, 0.001)
}

func TestRender_JPEGAndNoUpscale(t *testing.T) {
	assets := archive.Assets{{Filename: "small.jpg", Content: jpegBytes(t, 100, 50), Format: archive.FormatJPG}}
	tl := timeline.Timeline{{Kind: timeline.KindScreenshot, Content: "small.jpg"}}

	doc, err := newRenderer().Render(tl, assets, Options{})
	require.NoError(t, err)

	got := blocks(doc)
	require.Len(t, got, 1)
	assert.Equal(t, BlockScreenshot, got[0].Kind)
	l := DefaultLayout()
	assert.InDelta(t, l.LabelSize+l.LabelGap+50+l.CaptionGap, got[0].Bottom-got[0].Top, 0.001)
}

func TestRender_MissingScreenshotIsPlaceholder(t *testing.T) {
	tl := timeline.Timeline{
		{Kind: timeline.KindScreenshot, Content: "missing.png"},
		{Kind: timeline.KindLog, Content: "after"},
	}

	doc, err := newRenderer().Render(tl, archive.Assets{{Filename: "other.png", Content: pngBytes(t, 10, 10)}}, Options{})
	require.NoError(t, err)

	got := blocks(doc)
	require.Len(t, got, 2)
	assert.Equal(t, BlockNotFound, got[0].Kind)
	assert.Equal(t, "Screenshot not found: missing.png", got[0].Text)
	assert.Equal(t, BlockLog, got[1].Kind)
}

func TestRender_CorruptImageIsPlaceholder(t *testing.T) {
	assets := archive.Assets{
		{Filename: "broken.png", Content: []byte("definitely not a png"), Format: archive.FormatPNG},
		{Filename: "fine.png", Content: pngBytes(t, 40, 40), Format: archive.FormatPNG},
	}
	tl := timeline.Timeline{
		{Kind: timeline.KindScreenshot, Content: "broken.png"},
		{Kind: timeline.KindScreenshot, Content: "fine.png"},
		{Kind: timeline.KindLog, Content: "still rendered"},
	}

	doc, err := newRenderer().Render(tl, assets, Options{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Bytes, []byte("%PDF-")))

	got := blocks(doc)
	require.Len(t, got, 3)
	assert.Equal(t, BlockEmbedError, got[0].Kind)
	assert.Equal(t, "Error loading image: broken.png", got[0].Text)
	assert.Equal(t, BlockScreenshot, got[1].Kind)
	assert.Equal(t, BlockLog, got[2].Kind)
}

func TestRender_ManyLogsPaginateWithoutOverflow(t *testing.T) {
	word := "lorem "
	content := strings.TrimSpace(strings.Repeat(word, 500/len(word)+1))[:500]

	tl := make(timeline.Timeline, 0, 50)
	for i := 0; i < 50; i++ {
		tl = append(tl, timeline.Entry{Kind: timeline.KindLog, Content: content})
	}

	r := newRenderer()
	doc, err := r.Render(tl, nil, Options{})
	require.NoError(t, err)
	require.Greater(t, len(doc.Pages), 1)

	l := r.Layout()
	count := 0
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			count++
			assert.LessOrEqual(t, b.Bottom, l.PageHeight-l.BottomMargin, "page %d", p.Number)
			assert.GreaterOrEqual(t, b.Top, l.TopMargin-l.LabelSize, "page %d", p.Number)
		}
	}
	assert.Equal(t, 50, count, "every paragraph stays on one page")
}

func TestRender_ScreenshotsNeverSplit(t *testing.T) {
	assets := archive.Assets{{Filename: "tall.png", Content: pngBytes(t, 300, 900), Format: archive.FormatPNG}}

	var tl timeline.Timeline
	for i := 0; i < 6; i++ {
		tl = append(tl,
			timeline.Entry{Kind: timeline.KindLog, Content: fmt.Sprintf("step %d", i)},
			timeline.Entry{Kind: timeline.KindScreenshot, Content: "tall.png"},
		)
	}

	r := newRenderer()
	doc, err := r.Render(tl, assets, Options{})
	require.NoError(t, err)
	require.Greater(t, len(doc.Pages), 2)

	l := r.Layout()
	shots := 0
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			if b.Kind != BlockScreenshot {
				continue
			}
			shots++
			assert.LessOrEqual(t, b.Bottom, l.PageHeight-l.BottomMargin)
		}
	}
	assert.Equal(t, 6, shots)
}

func TestRender_ParagraphTallerThanPageFlows(t *testing.T) {
	content := strings.TrimSpace(strings.Repeat("overflowing words ", 400))
	tl := timeline.Timeline{
		{Kind: timeline.KindLog, Content: "short"},
		{Kind: timeline.KindLog, Content: content},
	}

	r := newRenderer()
	doc, err := r.Render(tl, nil, Options{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(doc.Pages), 3)

	l := r.Layout()
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			assert.LessOrEqual(t, b.Bottom, l.PageHeight-l.BottomMargin)
		}
	}
	// The long paragraph starts on a fresh page.
	assert.Len(t, doc.Pages[0].Blocks, 1)
}

func TestRender_Header(t *testing.T) {
	doc, err := newRenderer().Render(
		timeline.Timeline{{Kind: timeline.KindLog, Content: "x"}},
		nil,
		Options{Title: "Test Execution Report", Header: []string{"Session: abc", "Entries: 1"}},
	)
	require.NoError(t, err)
	got := blocks(doc)
	require.Len(t, got, 2)
	assert.Equal(t, BlockHeader, got[0].Kind)
	assert.Less(t, got[0].Bottom, got[1].Top)
}

func TestRender_NonLatinText(t *testing.T) {
	tl := timeline.Timeline{{Kind: timeline.KindLog, Content: "✓ passed: naïve café"}}
	_, err := newRenderer().Render(tl, nil, Options{})
	require.NoError(t, err)
}

func TestMatch(t *testing.T) {
	assets := archive.Assets{
		{Filename: "STEP1.png"},
		{Filename: "step_2_login.png.png"},
		{Filename: "step_3_home.jpg"},
	}

	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"step1.png", "STEP1.png", true},
		{"step_2_login.png", "step_2_login.png.png", true},
		{"step_3_home.png", "step_3_home.jpg", true},
		{"STEP_3_HOME", "step_3_home.jpg", true},
		{"missing.png", "", false},
		{".png", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		got, ok := Match(tt.ref, assets)
		assert.Equal(t, tt.ok, ok, tt.ref)
		assert.Equal(t, tt.want, got.Filename, tt.ref)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"empty", "", 10, nil},
		{"fits", "a b c", 10, []string{"a b c"}},
		{"exact width", "abcde fghij", 11, []string{"abcde fghij"}},
		{"breaks", "abcde fghij", 10, []string{"abcde", "fghij"}},
		{"long word", "abcdefghijkl xy", 5, []string{"abcde", "fghij", "kl xy"}},
		{"collapses whitespace", "a   b\tc", 10, []string{"a b c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapText(tt.text, tt.width))
		})
	}
}

func TestLayout_ScaleImage(t *testing.T) {
	l := DefaultLayout()

	w, h := l.scaleImage(800, 600)
	assert.InDelta(t, 400, w, 0.001)
	assert.InDelta(t, 300, h, 0.001)

	w, h = l.scaleImage(1000, 100)
	assert.InDelta(t, 400, w, 0.001)
	assert.InDelta(t, 40, h, 0.001)

	w, h = l.scaleImage(120, 80)
	assert.InDelta(t, 120, w, 0.001)
	assert.InDelta(t, 80, h, 0.001)
}
