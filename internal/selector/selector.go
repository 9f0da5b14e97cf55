// Package selector builds the set of items served in an exam session.
// Two modes exist: stratified sampling fixes the whole item list at session
// start, stepwise selection picks one item at a time based on the previous
// answer. Both are deterministic for a fixed random source.
package selector

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/pavelanni/examflow/internal/model"
)

// ItemSource provides the item pools to sample from.
type ItemSource interface {
	ListItemsByExamAndLevel(examID string, level model.Level) ([]model.Item, error)
}

// Selector chooses the items for an exam session.
type Selector interface {
	// SelectInitial returns the items served at session start, in order.
	SelectInitial(examID string, n int) ([]model.Item, error)
	// SelectNext picks the item to serve after an answer at the given level
	// was graded. served holds the ids of items already in the session.
	// A nil item means the exam is complete.
	SelectNext(examID string, level model.Level, correct bool, served map[int64]bool) (*model.Item, error)
}

// Stratified draws a fixed share of items from each difficulty level and
// shuffles the result. A level pool smaller than its target contributes the
// whole pool; the session simply gets fewer questions.
type Stratified struct {
	src ItemSource
	mu  sync.Mutex // guards rng; selectors are shared across requests
	rng *rand.Rand
	mix map[model.Level]float64
}

// NewStratified creates a stratified selector with the given level mix.
// A nil mix falls back to the default 30/30/40 split.
func NewStratified(src ItemSource, rng *rand.Rand, mix map[model.Level]float64) *Stratified {
	if mix == nil {
		mix = model.DefaultLevelMix()
	}
	return &Stratified{src: src, rng: rng, mix: mix}
}

// SelectInitial samples at most n items across the levels per the
// configured mix.
func (s *Stratified) SelectInitial(examID string, n int) ([]model.Item, error) {
	targets := s.levelTargets(n)
	var selected []model.Item
	for level := model.MinLevel; level <= model.MaxLevel; level++ {
		target := targets[level]
		if target == 0 {
			continue
		}
		pool, err := s.src.ListItemsByExamAndLevel(examID, level)
		if err != nil {
			return nil, fmt.Errorf("fetch level %d pool: %w", level, err)
		}
		selected = append(selected, s.sample(pool, target)...)
	}
	s.mu.Lock()
	s.rng.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	s.mu.Unlock()
	return selected, nil
}

// levelTargets apportions n across the levels: the floor of each level's
// exact share, with the remainder distributed to the largest fractional
// parts. The totals never exceed n, whatever the mix sums to.
func (s *Stratified) levelTargets(n int) map[model.Level]int {
	total := 0.0
	for level := model.MinLevel; level <= model.MaxLevel; level++ {
		total += s.mix[level]
	}
	targets := make(map[model.Level]int)
	if total == 0 {
		return targets
	}

	type frac struct {
		level model.Level
		part  float64
	}
	var fracs []frac
	assigned := 0
	for level := model.MinLevel; level <= model.MaxLevel; level++ {
		share := float64(n) * s.mix[level] / total
		whole := int(math.Floor(share))
		targets[level] = whole
		assigned += whole
		fracs = append(fracs, frac{level, share - float64(whole)})
	}
	sort.SliceStable(fracs, func(i, j int) bool { return fracs[i].part > fracs[j].part })
	for i := 0; i < n-assigned && i < len(fracs); i++ {
		targets[fracs[i].level]++
	}
	return targets
}

// SelectNext is not used in stratified mode: the session order is fixed at
// start, so there is never a next item to pick.
func (s *Stratified) SelectNext(string, model.Level, bool, map[int64]bool) (*model.Item, error) {
	return nil, nil
}

// sample draws target items uniformly without replacement. If the pool is
// smaller than the target the entire pool is returned.
func (s *Stratified) sample(pool []model.Item, target int) []model.Item {
	if len(pool) <= target {
		return pool
	}
	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	s.mu.Lock()
	s.rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	s.mu.Unlock()
	picked := make([]model.Item, 0, target)
	for _, i := range idx[:target] {
		picked = append(picked, pool[i])
	}
	return picked
}

// Stepwise walks the difficulty ladder one item at a time: up one level after
// a correct answer, down one after a wrong one, clamped to the supported
// range. When the target level has no unserved items left it falls back to
// any level; when nothing remains anywhere the exam is complete.
type Stepwise struct {
	src ItemSource
	mu  sync.Mutex
	rng *rand.Rand
}

// NewStepwise creates a stepwise selector.
func NewStepwise(src ItemSource, rng *rand.Rand) *Stepwise {
	return &Stepwise{src: src, rng: rng}
}

// SelectInitial serves a single starting item at the lowest level that has
// any items, so an exam without easy questions can still start.
func (s *Stepwise) SelectInitial(examID string, n int) ([]model.Item, error) {
	if n == 0 {
		return nil, nil
	}
	for level := model.MinLevel; level <= model.MaxLevel; level++ {
		item, err := s.pickAt(examID, level, nil)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return []model.Item{*item}, nil
		}
	}
	return nil, nil
}

// SelectNext picks a random unserved item at the clamped target level.
func (s *Stepwise) SelectNext(examID string, level model.Level, correct bool, served map[int64]bool) (*model.Item, error) {
	target := level - 1
	if correct {
		target = level + 1
	}
	target = target.Clamp()

	item, err := s.pickAt(examID, target, served)
	if err != nil {
		return nil, err
	}
	if item != nil {
		return item, nil
	}

	// Target level exhausted; fall back to any remaining level.
	for l := model.MinLevel; l <= model.MaxLevel; l++ {
		if l == target {
			continue
		}
		item, err := s.pickAt(examID, l, served)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}
	return nil, nil
}

func (s *Stepwise) pickAt(examID string, level model.Level, served map[int64]bool) (*model.Item, error) {
	pool, err := s.src.ListItemsByExamAndLevel(examID, level)
	if err != nil {
		return nil, fmt.Errorf("fetch level %d pool: %w", level, err)
	}
	var candidates []model.Item
	for _, it := range pool {
		if !served[it.ID] {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	picked := candidates[s.rng.IntN(len(candidates))]
	s.mu.Unlock()
	return &picked, nil
}
