// Package resolver implements the Resolver: resolving a symbolic
// target to exactly one Element within a Snapshot. Pure over
// (Snapshot, Target); it performs no I/O and never mutates the snapshot.
package resolver

import (
	"sort"
	"strings"

	"nexus/internal/mark"
	"nexus/internal/model"
)

// Target is one of the three accepted forms.
type Target struct {
	Name  string     // fuzzy name match
	Role  model.Role // optional role filter alongside Name
	Index int        // 1-based; 0 means "not given"

	Selector string // forwarded to Browser-AX; resolver does not interpret it

	Mark int // looked up in the Mark Registry; 0 means "not given"
}

// ambiguityMargin is the minimum lead the top score must hold over the
// second-best before it's accepted outright.
const ambiguityMargin = 0.15

// minAcceptScore is the floor below which no candidate is considered a
// match at all.
const minAcceptScore = 0.45

// candidate pairs an element with its computed name_score. Role filtering
// happens before scoring, so the role_bonus term in the
// scoring formula is folded into that hard filter rather than a separate
// additive term: every remaining candidate already matches the requested
// role, so a constant bonus would not discriminate among them.
type candidate struct {
	element model.Element
	score   float64
}

// Resolve resolves target against snap. Registry is consulted only for
// Mark targets; it may be nil when target.Mark is unset.
func Resolve(snap model.Snapshot, target Target, registry *mark.Registry) (model.Element, error) {
	switch {
	case target.Mark != 0:
		return resolveMark(snap, target.Mark, registry)
	case target.Selector != "":
		return model.Element{}, model.NewError(model.ErrBadRequest,
			"selector targets must be dispatched to the browser-ax backend directly, not resolved against a Snapshot")
	default:
		return resolveByName(snap, target)
	}
}

func resolveMark(snap model.Snapshot, n int, registry *mark.Registry) (model.Element, error) {
	if registry == nil {
		return model.Element{}, model.NewError(model.ErrTargetNotFound, "no mark registry configured")
	}
	id, ok := registry.Resolve(n)
	if !ok {
		return model.Element{}, model.NewError(model.ErrTargetNotFound, "mark %d not found in the active mark table", n)
	}
	el, ok := snap.ByID(id)
	if !ok {
		return model.Element{}, model.NewError(model.ErrTargetNotFound, "mark %d resolved to element %q, which is no longer present in this snapshot", n, id)
	}
	return el, nil
}

func resolveByName(snap model.Snapshot, target Target) (model.Element, error) {
	pool := snap.Elements
	if target.Role != "" {
		filtered := make([]model.Element, 0, len(pool))
		for _, e := range pool {
			if e.Role == target.Role {
				filtered = append(filtered, e)
			}
		}
		pool = filtered
	}

	candidates := make([]candidate, 0, len(pool))
	for _, e := range pool {
		candidates = append(candidates, candidate{element: e, score: nameScore(target.Name, e.Name)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if len(candidates) == 0 {
		return model.Element{}, ambiguousOrNotFound(nil)
	}

	if target.Index > 0 {
		if target.Index > len(candidates) {
			return model.Element{}, model.NewError(model.ErrTargetNotFound, "index %d exceeds %d matching candidates", target.Index, len(candidates))
		}
		return candidates[target.Index-1].element, nil
	}

	top := candidates[0]
	if top.score < minAcceptScore {
		return model.Element{}, ambiguousOrNotFound(topCandidates(candidates, 5))
	}
	if len(candidates) == 1 {
		return top.element, nil
	}

	second := candidates[1]
	if top.score-second.score >= ambiguityMargin {
		return top.element, nil
	}

	// Tied within the margin: break by proximity to screen center among all
	// candidates sharing (approximately) the top score.
	tied := []candidate{top}
	for _, c := range candidates[1:] {
		if top.score-c.score < ambiguityMargin {
			tied = append(tied, c)
		} else {
			break
		}
	}
	return nearestToCenter(tied, snap), nil
}

func nearestToCenter(tied []candidate, snap model.Snapshot) model.Element {
	screenCenterX, screenCenterY := screenCenter(snap)
	best := tied[0].element
	bestDist := distSquared(best.Bounds, screenCenterX, screenCenterY)
	for _, c := range tied[1:] {
		d := distSquared(c.element.Bounds, screenCenterX, screenCenterY)
		if d < bestDist {
			bestDist = d
			best = c.element
		}
	}
	return best
}

func screenCenter(snap model.Snapshot) (int, int) {
	maxX, maxY := 0, 0
	for _, e := range snap.Elements {
		if r := e.Bounds.X + e.Bounds.W; r > maxX {
			maxX = r
		}
		if b := e.Bounds.Y + e.Bounds.H; b > maxY {
			maxY = b
		}
	}
	return maxX / 2, maxY / 2
}

func distSquared(r model.Rect, cx, cy int) int {
	x, y := r.Center()
	dx, dy := x-cx, y-cy
	return dx*dx + dy*dy
}

func topCandidates(candidates []candidate, n int) []model.Element {
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]model.Element, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].element
	}
	return out
}

func ambiguousOrNotFound(top []model.Element) *model.Error {
	names := make([]string, len(top))
	for i, e := range top {
		names[i] = e.Name
	}
	err := model.NewError(model.ErrTargetNotFound, "no candidate matched confidently enough")
	if len(top) > 0 {
		err = err.WithContext("top_candidates", names)
	}
	return err
}

// nameScore implements the scoring formula: exact case-insensitive
// equality is 1.0; otherwise the larger of Jaro-Winkler similarity and
// substring containment weighted by 1 - |len_diff|/max_len.
func nameScore(target, candidate string) float64 {
	t, c := strings.ToLower(strings.TrimSpace(target)), strings.ToLower(strings.TrimSpace(candidate))
	if t == c {
		return 1.0
	}
	if t == "" || c == "" {
		return 0
	}
	jw := jaroWinkler(t, c)
	sub := substringScore(t, c)
	if sub > jw {
		return sub
	}
	return jw
}

func substringScore(target, candidate string) float64 {
	if !strings.Contains(candidate, target) && !strings.Contains(target, candidate) {
		return 0
	}
	maxLen := len(target)
	if len(candidate) > maxLen {
		maxLen = len(candidate)
	}
	if maxLen == 0 {
		return 0
	}
	lenDiff := len(target) - len(candidate)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	return 1 - float64(lenDiff)/float64(maxLen)
}

// jaroWinkler computes the Jaro-Winkler similarity of a and b in [0,1].
func jaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j <= 0 {
		return j
	}
	prefix := commonPrefixLen(a, b, 4)
	const scalingFactor = 0.1
	return j + float64(prefix)*scalingFactor*(1-j)
}

func jaro(a, b string) float64 {
	la, lb := len(a), len(b)
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	matchDistance := la
	if lb > matchDistance {
		matchDistance = lb
	}
	matchDistance = matchDistance/2 - 1
	if matchDistance < 0 {
		matchDistance = 0
	}

	aMatches := make([]bool, la)
	bMatches := make([]bool, lb)
	matches := 0

	for i := 0; i < la; i++ {
		start := i - matchDistance
		if start < 0 {
			start = 0
		}
		end := i + matchDistance + 1
		if end > lb {
			end = lb
		}
		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := 0; i < la; i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}
	transpositions /= 2

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions))/m) / 3
}

func commonPrefixLen(a, b string, max int) int {
	n := 0
	for n < len(a) && n < len(b) && n < max && a[n] == b[n] {
		n++
	}
	return n
}
