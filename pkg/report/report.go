package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"

	"qaflow/pkg/archive"
	"qaflow/pkg/timeline"
)

const fontFamily = "Helvetica"

// BlockKind identifies what a placed block shows.
type BlockKind string

const (
	BlockHeader     BlockKind = "header"
	BlockLog        BlockKind = "log"
	BlockScreenshot BlockKind = "screenshot"
	BlockNotFound   BlockKind = "screenshot_not_found"
	BlockEmbedError BlockKind = "screenshot_error"
)

// Block records where a piece of content landed. Top and Bottom are measured
// from the top edge of the page; Bottom is the lowest baseline or image edge.
type Block struct {
	Kind   BlockKind
	Top    float64
	Bottom float64
	Text   string
}

// Page lists the blocks placed on one page.
type Page struct {
	Number int
	Blocks []Block
}

// Document is a rendered report.
type Document struct {
	Bytes []byte
	Pages []Page
}

// Options carries per-document metadata.
type Options struct {
	Title  string
	Header []string
}

// Renderer turns timelines into PDF documents.
type Renderer struct {
	layout Layout
	log    zerolog.Logger
}

// New returns a Renderer using layout; zero fields take their defaults.
func New(layout Layout, logger zerolog.Logger) *Renderer {
	return &Renderer{layout: layout.withDefaults(), log: logger}
}

// Layout returns the effective layout.
func (r *Renderer) Layout() Layout {
	return r.layout
}

// Render lays out tl in order. Screenshot entries are resolved against
// assets; missing or undecodable images become placeholder blocks.
func (r *Renderer) Render(tl timeline.Timeline, assets archive.Assets, opts Options) (*Document, error) {
	l := r.layout
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: l.PageWidth, Ht: l.PageHeight},
	})
	pdf.SetMargins(l.LeftMargin, l.TopMargin, l.LeftMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("qaflow", true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}

	w := &writer{
		pdf:    pdf,
		layout: l,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		log:    r.log,
	}
	w.newPage()

	if opts.Title != "" || len(opts.Header) > 0 {
		w.header(opts.Title, opts.Header)
	}

	for _, entry := range tl {
		switch entry.Kind {
		case timeline.KindLog:
			w.logEntry(entry.Content)
		case timeline.KindScreenshot:
			w.screenshotEntry(entry.Content, assets)
		default:
			w.logEntry(entry.Content)
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	return &Document{Bytes: buf.Bytes(), Pages: w.pages}, nil
}

type writer struct {
	pdf    *fpdf.Fpdf
	layout Layout
	tr     func(string) string
	log    zerolog.Logger

	y     float64
	pages []Page
}

func (w *writer) newPage() {
	w.pdf.AddPage()
	w.pages = append(w.pages, Page{Number: len(w.pages) + 1})
	w.y = w.layout.TopMargin
}

// ensure starts a new page unless need points of baseline travel fit below
// the cursor. A block taller than a page is placed at the top of a fresh one.
func (w *writer) ensure(need float64) {
	if w.y+need <= w.layout.contentBottom() {
		return
	}
	if w.y > w.layout.TopMargin {
		w.newPage()
	}
}

func (w *writer) place(b Block) {
	p := &w.pages[len(w.pages)-1]
	p.Blocks = append(p.Blocks, b)
}

func (w *writer) text(x, y float64, style string, size float64, r, g, b int, s string) {
	w.pdf.SetFont(fontFamily, style, size)
	w.pdf.SetTextColor(r, g, b)
	w.pdf.Text(x, y, w.tr(s))
}

func (w *writer) header(title string, lines []string) {
	l := w.layout
	top := w.y - l.TitleSize
	if title != "" {
		w.text(l.LeftMargin, w.y, "B", l.TitleSize, 0, 0, 0, title)
		w.y += l.TitleSize + l.CaptionGap
	}
	for _, line := range lines {
		for _, wrapped := range wrapText(line, l.WrapWidth) {
			w.ensure(0)
			w.text(l.LeftMargin, w.y, "", l.CaptionSize, 80, 80, 80, wrapped)
			w.y += l.CaptionSize + 4
		}
	}
	w.place(Block{Kind: BlockHeader, Top: top, Bottom: w.y - l.CaptionSize - 4, Text: title})
	w.y += l.EntryGap
}

func (w *writer) label(s string) float64 {
	top := w.y - w.layout.LabelSize
	w.text(w.layout.LeftMargin, w.y, "B", w.layout.LabelSize, 0, 0, 0, s)
	w.y += w.layout.LabelGap
	return top
}

func (w *writer) logEntry(content string) {
	l := w.layout
	lines := wrapText(content, l.WrapWidth)

	need := l.LabelGap
	if len(lines) > 1 {
		need += float64(len(lines)-1) * l.LineHeight
	}
	w.ensure(need)

	top := w.label("LOG:")
	bottom := top + l.LabelSize
	for i, line := range lines {
		if w.y > l.contentBottom() {
			// Only paragraphs taller than a page get here.
			w.place(Block{Kind: BlockLog, Top: top, Bottom: bottom, Text: content})
			w.newPage()
			top = w.y - l.BodySize
		}
		w.text(l.LeftMargin, w.y, "", l.BodySize, 51, 51, 51, line)
		bottom = w.y
		if i < len(lines)-1 {
			w.y += l.LineHeight
		}
	}
	if len(lines) == 0 {
		w.y -= l.LabelGap
	}
	w.place(Block{Kind: BlockLog, Top: top, Bottom: bottom, Text: content})
	w.y += l.EntryGap
}

func (w *writer) screenshotEntry(ref string, assets archive.Assets) {
	l := w.layout
	asset, ok := Match(ref, assets)
	if !ok {
		w.log.Debug().Str("screenshot", ref).Msg("screenshot not found in archive")
		w.placeholder(BlockNotFound, fmt.Sprintf("Screenshot not found: %s", ref), gray, l.PlaceholderSize)
		return
	}

	name, iw, ih, err := w.embed(asset)
	if err != nil {
		w.log.Warn().Err(err).Str("screenshot", asset.Filename).Msg("embed screenshot")
		w.placeholder(BlockEmbedError, fmt.Sprintf("Error loading image: %s", asset.Filename), red, l.CaptionSize)
		return
	}

	sw, sh := l.scaleImage(iw, ih)
	w.ensure(l.LabelGap + sh + l.CaptionGap)

	top := w.label("SCREENSHOT:")
	x := (l.PageWidth - sw) / 2
	w.pdf.ImageOptions(name, x, w.y, sw, sh, false, fpdf.ImageOptions{}, 0, "")
	w.y += sh + l.CaptionGap

	w.text(l.LeftMargin, w.y, "", l.CaptionSize, 0, 153, 0, "File: "+asset.Filename)
	w.place(Block{Kind: BlockScreenshot, Top: top, Bottom: w.y, Text: asset.Filename})
	w.y += l.ScreenshotGap
}

type rgb struct{ r, g, b int }

var (
	gray = rgb{153, 153, 153}
	red  = rgb{255, 0, 0}
)

func (w *writer) placeholder(kind BlockKind, msg string, color rgb, size float64) {
	l := w.layout
	w.ensure(l.LabelGap)

	top := w.label("SCREENSHOT:")
	w.text(l.LeftMargin, w.y, "", size, color.r, color.g, color.b, msg)
	w.place(Block{Kind: kind, Top: top, Bottom: w.y, Text: msg})
	w.y += l.ScreenshotGap
}

// embed registers asset with the document and returns its image name and
// natural size. Registration failures are cleared so the document stays
// usable.
func (w *writer) embed(asset archive.Asset) (name string, width, height float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			w.pdf.ClearError()
			err = fmt.Errorf("decode %s: %v", asset.Filename, rec)
		}
	}()

	format := asset.Format
	if format == "" {
		format, _ = archive.FormatOf(asset.Filename)
	}
	var imageType string
	switch format {
	case archive.FormatPNG:
		imageType = "PNG"
	case archive.FormatJPG, archive.FormatJPEG:
		imageType = "JPG"
	default:
		return "", 0, 0, fmt.Errorf("unsupported image format for %s", asset.Filename)
	}
	if len(asset.Content) == 0 {
		return "", 0, 0, errors.New("empty image")
	}

	name = "screenshot:" + strings.ToLower(asset.Filename)
	info := w.pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(asset.Content))
	if w.pdf.Err() {
		err = w.pdf.Error()
		w.pdf.ClearError()
		return "", 0, 0, err
	}
	if info == nil || info.Width() <= 0 || info.Height() <= 0 {
		return "", 0, 0, fmt.Errorf("image %s has no dimensions", asset.Filename)
	}
	return name, info.Width(), info.Height(), nil
}
