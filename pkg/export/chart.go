package export

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"slices"
	"strings"

	"git.sr.ht/~sbinet/gg"
	"github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/sgv/pkg/model"
	"github.com/vanderheijden86/sgv/pkg/natsort"
)

// MaxChartBars caps the number of subgraphs drawn.
const MaxChartBars = 30

// ChartOptions controls SaveSizeChart.
type ChartOptions struct {
	Path    string
	Format  Format // FormatSVG or FormatPNG
	Title   string
	Records []model.Record
}

type chartBar struct {
	SubgraphID string
	CellType   string
	Size       int
}

type chartLayout struct {
	Title   string
	Bars    []chartBar
	Omitted int
	MaxSize int
	Width   int
	Height  int
}

const (
	chartPadding = 24
	chartHeader  = 64
	chartLabelW  = 220
	chartBarMaxW = 420
	chartRowH    = 22
	chartBarH    = 14
)

var (
	colorBackdrop = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG = color.RGBA{0xe8, 0xea, 0xf6, 0xff}
	colorBar      = color.RGBA{0x6b, 0x47, 0xd9, 0xff}
	colorBarTrack = color.RGBA{0xe0, 0xe0, 0xe0, 0xff}
	colorText     = color.RGBA{0x1f, 0x29, 0x37, 0xff}
	colorSubtle   = color.RGBA{0x4b, 0x55, 0x63, 0xff}
)

// SaveSizeChart draws a horizontal bar chart of subgraph sizes, one bar per
// distinct subgraph in the records, largest first.
func SaveSizeChart(opts ChartOptions) error {
	if len(opts.Records) == 0 {
		return fmt.Errorf("no results to chart")
	}
	layout := buildChartLayout(opts)
	switch opts.Format {
	case FormatSVG:
		f, err := os.Create(opts.Path)
		if err != nil {
			return err
		}
		if err := renderChartSVG(f, layout); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case FormatPNG:
		return renderChartPNG(layout).SavePNG(opts.Path)
	default:
		return fmt.Errorf("unsupported chart format %q (want svg or png)", opts.Format)
	}
}

func buildChartLayout(opts ChartOptions) chartLayout {
	byID := make(map[string]*chartBar)
	var order []string
	for _, r := range opts.Records {
		if _, ok := byID[r.SubgraphID]; ok {
			continue
		}
		size, _ := r.SubgraphSizeInt()
		byID[r.SubgraphID] = &chartBar{SubgraphID: r.SubgraphID, CellType: model.FormatCellType(r.CellType), Size: size}
		order = append(order, r.SubgraphID)
	}

	bars := make([]chartBar, 0, len(order))
	for _, id := range order {
		bars = append(bars, *byID[id])
	}
	slices.SortStableFunc(bars, func(a, b chartBar) int {
		if a.Size != b.Size {
			return b.Size - a.Size
		}
		return natsort.Compare(a.SubgraphID, b.SubgraphID)
	})

	l := chartLayout{Title: opts.Title}
	if len(bars) > MaxChartBars {
		l.Omitted = len(bars) - MaxChartBars
		bars = bars[:MaxChartBars]
	}
	l.Bars = bars
	for _, b := range bars {
		l.MaxSize = max(l.MaxSize, b.Size)
	}
	l.Width = chartPadding*2 + chartLabelW + chartBarMaxW + 60
	l.Height = chartHeader + chartPadding*2 + len(bars)*chartRowH
	if l.Omitted > 0 {
		l.Height += chartRowH
	}
	return l
}

// barWidth scales size to the bar area; the largest subgraph fills it.
func (l chartLayout) barWidth(size int) float64 {
	if l.MaxSize <= 0 || size <= 0 {
		return 0
	}
	return float64(size) / float64(l.MaxSize) * chartBarMaxW
}

func (b chartBar) label() string {
	id := b.SubgraphID
	if id == "" {
		id = "(no id)"
	}
	if b.CellType == "" {
		return truncateLabel(id, 30)
	}
	return truncateLabel(fmt.Sprintf("%s %s", id, b.CellType), 30)
}

func (l chartLayout) subtitle() string {
	s := fmt.Sprintf("%d subgraphs by size", len(l.Bars))
	if l.Omitted > 0 {
		s += fmt.Sprintf(" (top %d)", MaxChartBars)
	}
	return s
}

func renderChartSVG(w io.Writer, l chartLayout) error {
	canvas := svg.New(w)
	canvas.Start(l.Width, l.Height)
	canvas.Rect(0, 0, l.Width, l.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(12, 12, l.Width-24, chartHeader-16, 8, 8, fmt.Sprintf("fill:%s", css(colorHeaderBG)))
	canvas.Text(chartPadding, 34, l.Title, fmt.Sprintf("fill:%s;font-size:15px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(chartPadding, 52, l.subtitle(), fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorSubtle)))

	y := chartHeader + chartPadding
	x0 := chartPadding + chartLabelW
	for _, b := range l.Bars {
		canvas.Text(chartPadding, y+chartBarH-3, b.label(), fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorText)))
		canvas.Rect(x0, y, chartBarMaxW, chartBarH, fmt.Sprintf("fill:%s", css(colorBarTrack)))
		canvas.Rect(x0, y, int(l.barWidth(b.Size)), chartBarH, fmt.Sprintf("fill:%s", css(colorBar)))
		canvas.Text(x0+chartBarMaxW+8, y+chartBarH-3, fmt.Sprint(b.Size), fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorSubtle)))
		y += chartRowH
	}
	if l.Omitted > 0 {
		canvas.Text(chartPadding, y+chartBarH-3, fmt.Sprintf("... %d more", l.Omitted), fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorSubtle)))
	}
	canvas.End()
	return nil
}

func renderChartPNG(l chartLayout) *gg.Context {
	dc := gg.NewContext(l.Width, l.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(12, 12, float64(l.Width-24), chartHeader-16, 8)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(l.Title, chartPadding, 30, 0, 0.5)
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(l.subtitle(), chartPadding, 48, 0, 0.5)

	y := float64(chartHeader + chartPadding)
	x0 := float64(chartPadding + chartLabelW)
	mid := chartBarH / 2.0
	for _, b := range l.Bars {
		dc.SetColor(colorText)
		dc.DrawStringAnchored(b.label(), chartPadding, y+mid, 0, 0.5)
		dc.SetColor(colorBarTrack)
		dc.DrawRectangle(x0, y, chartBarMaxW, chartBarH)
		dc.Fill()
		dc.SetColor(colorBar)
		dc.DrawRectangle(x0, y, l.barWidth(b.Size), chartBarH)
		dc.Fill()
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(fmt.Sprint(b.Size), x0+chartBarMaxW+8, y+mid, 0, 0.5)
		y += chartRowH
	}
	if l.Omitted > 0 {
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(fmt.Sprintf("... %d more", l.Omitted), chartPadding, y+mid, 0, 0.5)
	}
	return dc
}

// truncateLabel shortens s to max runes; basicfont only covers ASCII widths
// so rune counting is enough here.
func truncateLabel(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
