// Package mark implements the Mark Registry: numbering interactable
// elements, rendering numbered badges onto a screenshot, and resolving a
// mark number back to an element id.
package mark

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"nexus/internal/filter"
	"nexus/internal/model"
)

// Registry holds the single active MarkTable.
type Registry struct {
	mu    sync.Mutex
	table model.MarkTable
}

func New() *Registry {
	return &Registry{}
}

// Annotate selects interactable elements (focus-preset "interactive"),
// numbers them 1..N in reading order, renders badges onto screenshot, and
// replaces the active MarkTable.
func (r *Registry) Annotate(snap model.Snapshot, screenshot []byte) (model.MarkTable, []byte, error) {
	interactive, err := filter.Apply(snap.Elements, filter.Spec{Preset: "interactive"}, filter.DefaultPresets())
	if err != nil {
		return model.MarkTable{}, nil, err
	}

	table := model.MarkTable{
		SnapshotKey:  snap.WindowKey,
		SnapshotTime: snap.CapturedAt.UnixNano(),
	}
	for i, e := range interactive {
		x, y := e.Bounds.Center()
		table.Marks = append(table.Marks, model.Mark{Number: i + 1, ID: e.ID, X: x, Y: y})
	}

	r.mu.Lock()
	r.table = table
	r.mu.Unlock()

	annotated, err := renderBadges(screenshot, interactive)
	if err != nil {
		return table, nil, err
	}
	return table, annotated, nil
}

// Resolve looks up mark number n against the current MarkTable only — no
// back-search through history.
func (r *Registry) Resolve(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Resolve(n)
}

// Current returns the active MarkTable (for diagnostics / the daemon's
// click_mark error context).
func (r *Registry) Current() model.MarkTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table
}

// badgeColor derives a deterministic, readable-contrast color from role,
// so the same control role always gets the same badge color across frames.
func badgeColor(role model.Role) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(role))
	sum := h.Sum32()
	r := uint8(80 + sum%150)
	g := uint8(80 + (sum/256)%150)
	b := uint8(80 + (sum/65536)%150)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

const (
	badgeWidthPerDigit = 7
	badgeHeight        = 11
	badgeInset         = 2 // offset inside the element bounds, so the badge never sits exactly on the text anchor
	badgeStackOffset   = 4 // y offset applied when a later badge's box would overlap an earlier one
)

// renderBadges overlays numbered badges at the top-left of each element's
// bounds onto the screenshot PNG; overlapping badges are stacked with a
// small y offset rather than dropped.
func renderBadges(screenshot []byte, elements []model.Element) ([]byte, error) {
	if len(screenshot) == 0 {
		return nil, nil
	}
	img, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, err
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, img.Bounds(), img, image.Point{}, draw.Src)

	var placed []image.Rectangle
	for i, e := range elements {
		number := i + 1
		width := badgeWidthPerDigit*digitCount(number) + 2
		x := e.Bounds.X + badgeInset
		y := e.Bounds.Y + badgeInset
		box := image.Rect(x, y, x+width, y+badgeHeight)
		for overlapsAny(box, placed) {
			box = box.Add(image.Point{Y: badgeStackOffset})
		}
		placed = append(placed, box)
		drawBadge(rgba, box, number, badgeColor(e.Role))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func overlapsAny(box image.Rectangle, placed []image.Rectangle) bool {
	for _, p := range placed {
		if box.Overlaps(p) {
			return true
		}
	}
	return false
}

func digitCount(n int) int {
	count := 1
	for n >= 10 {
		n /= 10
		count++
	}
	return count
}

func drawBadge(img *image.RGBA, box image.Rectangle, number int, bg color.RGBA) {
	draw.Draw(img, box, &image.Uniform{C: bg}, image.Point{}, draw.Src)
	fg := color.White
	digits := digitsOf(number)
	cursor := box.Min.X + 1
	for _, d := range digits {
		drawDigit(img, cursor, box.Min.Y+2, d, fg)
		cursor += badgeWidthPerDigit
	}
}

func digitsOf(n int) []int {
	if n == 0 {
		return []int{0}
	}
	var digits []int
	for n > 0 {
		digits = append([]int{n % 10}, digits...)
		n /= 10
	}
	return digits
}

// digitGlyphs is a minimal embedded 5x7 bitmap font for digits 0-9; the
// standard library has no font rasterizer, and the only pack dependency
// that draws text (bubbletea/lipgloss) renders to a terminal, not a raster
// image, so badge numerals are drawn from these glyphs instead.
var digitGlyphs = map[int][7]uint8{
	0: {0b01110, 0b10001, 0b10011, 0b10101, 0b11001, 0b10001, 0b01110},
	1: {0b00100, 0b01100, 0b00100, 0b00100, 0b00100, 0b00100, 0b01110},
	2: {0b01110, 0b10001, 0b00001, 0b00010, 0b00100, 0b01000, 0b11111},
	3: {0b11111, 0b00010, 0b00100, 0b00010, 0b00001, 0b10001, 0b01110},
	4: {0b00010, 0b00110, 0b01010, 0b10010, 0b11111, 0b00010, 0b00010},
	5: {0b11111, 0b10000, 0b11110, 0b00001, 0b00001, 0b10001, 0b01110},
	6: {0b00110, 0b01000, 0b10000, 0b11110, 0b10001, 0b10001, 0b01110},
	7: {0b11111, 0b00001, 0b00010, 0b00100, 0b01000, 0b01000, 0b01000},
	8: {0b01110, 0b10001, 0b10001, 0b01110, 0b10001, 0b10001, 0b01110},
	9: {0b01110, 0b10001, 0b10001, 0b01111, 0b00001, 0b00010, 0b01100},
}

func drawDigit(img *image.RGBA, x, y, digit int, fg color.Color) {
	glyph, ok := digitGlyphs[digit]
	if !ok {
		return
	}
	for row, bits := range glyph {
		for col := 0; col < 5; col++ {
			if bits&(1<<(4-col)) != 0 {
				img.Set(x+col, y+row, fg)
			}
		}
	}
}
