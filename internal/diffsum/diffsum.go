// Package diffsum implements Diff & Summary: a structural element-set
// diff between two snapshots of the same window, plus a cheap always-on
// summary used by the daemon and by healing classification.
package diffsum

import (
	"math"
	"strings"
	"sync"

	"nexus/internal/model"
)

// churnThreshold is the fraction of max(prev,cur) element count beyond which
// a diff is considered larger than a full listing.
const churnThreshold = 0.5

// jitterPixels is the bounds-center movement or size change that must be
// exceeded to count as a real "changed" field, damping sub-pixel/layout noise.
const jitterPixels = 8

// ChangedField names one of the fields diff tracks per matched element.
type ChangedField string

const (
	FieldFocused ChangedField = "focused"
	FieldEnabled ChangedField = "enabled"
	FieldValue   ChangedField = "value"
	FieldBounds  ChangedField = "bounds"
)

// Change describes one matched element whose tracked fields differ.
type Change struct {
	PrevID  string         `json:"prev_id"`
	CurID   string         `json:"cur_id"`
	Name    string         `json:"name"`
	Role    model.Role     `json:"role"`
	Fields  []ChangedField `json:"fields"`
}

// Result is the diff outcome.
type Result struct {
	Added          []model.Element `json:"added"`
	Removed        []model.Element `json:"removed"`
	Changed        []Change        `json:"changed"`
	UnchangedCount int             `json:"unchanged_count"`

	// Mode is "diff" normally, or "full-due-to-churn" when the auto-fallback
	// triggered; Full then carries the entire current snapshot.
	Mode string          `json:"mode"`
	Full []model.Element `json:"full,omitempty"`
}

// cacheKey identifies an (old, new) snapshot pair for the Engine's result
// cache, keyed by fingerprint rather than full content hashing.
type cacheKey struct {
	prevFingerprint string
	curFingerprint  string
}

// Engine computes diffs with a small result cache, mirroring the shape of a
// conventional diff engine: construct once, call repeatedly, let recently
// seen (prev, cur) pairs short-circuit recomputation.
type Engine struct {
	cache sync.Map // cacheKey -> *Result
}

func NewEngine() *Engine {
	return &Engine{}
}

// Diff computes the element-set diff between prev and cur, applying the
// churn fallback when appropriate.
func (e *Engine) Diff(prev, cur model.Snapshot) *Result {
	key := cacheKey{prevFingerprint: prev.Fingerprint, curFingerprint: cur.Fingerprint}
	if prev.Fingerprint != "" && cur.Fingerprint != "" {
		if cached, ok := e.cache.Load(key); ok {
			return cached.(*Result)
		}
	}

	result := computeDiff(prev.Elements, cur.Elements)

	total := len(result.Added) + len(result.Removed) + len(result.Changed)
	maxCount := len(prev.Elements)
	if len(cur.Elements) > maxCount {
		maxCount = len(cur.Elements)
	}
	if maxCount > 0 && float64(total) > churnThreshold*float64(maxCount) {
		result = &Result{Mode: "full-due-to-churn", Full: cur.Elements}
	} else {
		result.Mode = "diff"
	}

	if prev.Fingerprint != "" && cur.Fingerprint != "" {
		e.cache.Store(key, result)
	}
	return result
}

// computeDiff matches elements by composite key (name, role, parent_name),
// breaking ties by nearest bounds center.
func computeDiff(prevElems, curElems []model.Element) *Result {
	prevByKey := groupByKey(prevElems)
	curByKey := groupByKey(curElems)

	matchedPrev := make(map[int]bool, len(prevElems))
	matchedCur := make(map[int]bool, len(curElems))
	var changes []Change
	unchanged := 0

	for key, curIdxs := range curByKey {
		prevIdxs, ok := prevByKey[key]
		if !ok {
			continue
		}
		pairs := pairByNearestCenter(prevIdxs, curIdxs, prevElems, curElems)
		for _, p := range pairs {
			matchedPrev[p.prevIdx] = true
			matchedCur[p.curIdx] = true
			fields := diffFields(prevElems[p.prevIdx], curElems[p.curIdx])
			if len(fields) == 0 {
				unchanged++
				continue
			}
			changes = append(changes, Change{
				PrevID: prevElems[p.prevIdx].ID,
				CurID:  curElems[p.curIdx].ID,
				Name:   curElems[p.curIdx].Name,
				Role:   curElems[p.curIdx].Role,
				Fields: fields,
			})
		}
	}

	var added, removed []model.Element
	for i, e := range curElems {
		if !matchedCur[i] {
			added = append(added, e)
		}
	}
	for i, e := range prevElems {
		if !matchedPrev[i] {
			removed = append(removed, e)
		}
	}

	return &Result{Added: added, Removed: removed, Changed: changes, UnchangedCount: unchanged}
}

func groupByKey(elements []model.Element) map[model.MatchKey][]int {
	m := make(map[model.MatchKey][]int)
	for i, e := range elements {
		k := e.MatchKey()
		m[k] = append(m[k], i)
	}
	return m
}

type idxPair struct {
	prevIdx, curIdx int
}

// pairByNearestCenter greedily pairs same-key candidates by closest bounds
// center, so a key with duplicate names still matches stably across frames.
func pairByNearestCenter(prevIdxs, curIdxs []int, prevElems, curElems []model.Element) []idxPair {
	usedCur := make(map[int]bool, len(curIdxs))
	var pairs []idxPair
	for _, pi := range prevIdxs {
		px, py := prevElems[pi].Bounds.Center()
		best := -1
		bestDist := math.MaxFloat64
		for _, ci := range curIdxs {
			if usedCur[ci] {
				continue
			}
			cx, cy := curElems[ci].Bounds.Center()
			d := dist(px, py, cx, cy)
			if d < bestDist {
				bestDist = d
				best = ci
			}
		}
		if best >= 0 {
			usedCur[best] = true
			pairs = append(pairs, idxPair{prevIdx: pi, curIdx: best})
		}
	}
	return pairs
}

func dist(x1, y1, x2, y2 int) float64 {
	dx, dy := float64(x1-x2), float64(y1-y2)
	return math.Sqrt(dx*dx + dy*dy)
}

func diffFields(prev, cur model.Element) []ChangedField {
	var fields []ChangedField
	if prev.Focused != cur.Focused {
		fields = append(fields, FieldFocused)
	}
	if prev.Enabled != cur.Enabled {
		fields = append(fields, FieldEnabled)
	}
	if prev.Value != cur.Value {
		fields = append(fields, FieldValue)
	}
	if boundsChanged(prev.Bounds, cur.Bounds) {
		fields = append(fields, FieldBounds)
	}
	return fields
}

// boundsChanged damps jitter: only a center move or size change beyond
// jitterPixels counts.
func boundsChanged(a, b model.Rect) bool {
	ax, ay := a.Center()
	bx, by := b.Center()
	if dist(ax, ay, bx, by) > jitterPixels {
		return true
	}
	return abs(a.W-b.W) > jitterPixels || abs(a.H-b.H) > jitterPixels
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Summary is the always-cheap-to-compute overview.
type Summary struct {
	CountsByRole    map[model.Role]int `json:"counts_by_role"`
	Focused         *FocusedRef        `json:"focused,omitempty"`
	HasDialog       bool               `json:"has_dialog"`
	ErrorElements   []model.Element    `json:"error_elements,omitempty"`
	SpatialGroups   map[string][]model.Element `json:"spatial_groups"`
}

type FocusedRef struct {
	Name string     `json:"name"`
	Role model.Role `json:"role"`
}

// spatialBandFractions are the five y-coordinate bands a window is bucketed
// into for the summary, named exactly as the summary's spatial
// groups: top, left, main, right, bottom.
var spatialBandFractions = []struct {
	name  string
	yFrac float64
}{
	{"top", 0.0},
	{"left", 0.2},
	{"main", 0.4},
	{"right", 0.6},
	{"bottom", 0.8},
}

// Summarize computes the cheap per-request summary over a snapshot.
func Summarize(snap model.Snapshot) Summary {
	counts := make(map[model.Role]int)
	var focused *FocusedRef
	var errs []model.Element
	groups := make(map[string][]model.Element, 5)

	windowHeight := windowHeightOf(snap.Elements)

	for _, e := range snap.Elements {
		counts[e.Role]++
		if e.Focused.Known && e.Focused.Value {
			focused = &FocusedRef{Name: e.Name, Role: e.Role}
		}
		if containsErrorMarker(e.Name) {
			errs = append(errs, e)
		}
		band := bandFor(e.Bounds.Y, windowHeight)
		groups[band] = append(groups[band], e)
	}

	hasDialog := counts[model.RoleDialog] > 0

	return Summary{
		CountsByRole:  counts,
		Focused:       focused,
		HasDialog:     hasDialog,
		ErrorElements: errs,
		SpatialGroups: groups,
	}
}

func windowHeightOf(elements []model.Element) int {
	maxY := 0
	for _, e := range elements {
		if bottom := e.Bounds.Y + e.Bounds.H; bottom > maxY {
			maxY = bottom
		}
	}
	if maxY == 0 {
		maxY = 1
	}
	return maxY
}

func bandFor(y, windowHeight int) string {
	frac := float64(y) / float64(windowHeight)
	band := spatialBandFractions[0].name
	for _, b := range spatialBandFractions {
		if frac >= b.yFrac {
			band = b.name
		}
	}
	return band
}

func containsErrorMarker(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "error") || strings.Contains(lower, "warning") || strings.Contains(lower, "alert")
}
