package vlist

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"livepage/internal/ui"
)

// PropItemIndex tags every materialized item node with its source index.
const PropItemIndex = "item_index"

var (
	ErrNotAttached   = errors.New("list region not attached")
	ErrInvalidConfig = errors.New("invalid list region config")
)

type State int

const (
	StateIdle State = iota
	StateComputing
	StateRendered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputing:
		return "computing"
	case StateRendered:
		return "rendered"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Range is the half-open interval [Start, End) of materialized items.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// ItemSource supplies the items of a region. Build creates the node for
// item i; the region attaches it.
type ItemSource interface {
	Len() int
	Build(t *ui.Tree, i int) (ui.NodeID, error)
}

type Extenter interface {
	Extent(i int) float64
}

type Config struct {
	// Viewport is the visible extent of the region in pixels.
	Viewport float64
	// ItemExtent is the extent of every item for sources that do not
	// implement Extenter.
	ItemExtent float64
}

func (c Config) validate(src ItemSource) error {
	if c.Viewport <= 0 {
		return fmt.Errorf("%w: viewport must be positive", ErrInvalidConfig)
	}
	if _, ok := src.(Extenter); !ok && c.ItemExtent <= 0 {
		return fmt.Errorf("%w: item extent must be positive", ErrInvalidConfig)
	}
	return nil
}

// Region is a list node whose children are the items of the visible range.
type Region struct {
	tree *ui.Tree
	src  ItemSource
	cfg  Config
	id   ui.NodeID

	mu     sync.Mutex
	state  State
	offset float64
	rng    Range
	items  map[int]ui.NodeID
	// prefix[i] is the summed extent of items before i; nil until measured
	// for sources implementing Extenter.
	prefix []float64
}

// New creates the list node of a region in t. The region stays Idle until
// attached.
func New(t *ui.Tree, src ItemSource, cfg Config) (*Region, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: source is nil", ErrInvalidConfig)
	}
	if err := cfg.validate(src); err != nil {
		return nil, err
	}
	id, err := t.Create(ui.KindList, map[string]ui.Value{
		"viewport": ui.Number(cfg.Viewport),
		"offset":   ui.Number(0),
	})
	if err != nil {
		return nil, fmt.Errorf("create list region: %w", err)
	}
	return &Region{
		tree:  t,
		src:   src,
		cfg:   cfg,
		id:    id,
		items: make(map[int]ui.NodeID),
	}, nil
}

func (r *Region) ID() ui.NodeID { return r.id }

func (r *Region) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Region) Range() Range {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng
}

func (r *Region) Offset() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

func (r *Region) ItemNode(i int) (ui.NodeID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.items[i]
	return id, ok
}

// Attach inserts the region under parent and materializes the initial
// range.
func (r *Region) Attach(parent ui.NodeID, position int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.tree.Attach(parent, r.id, position); err != nil {
		return err
	}
	r.state = StateComputing
	return r.renderLocked(r.offset)
}

// ScrollTo moves the top of the viewport to offset pixels and updates the
// materialized items.
func (r *Region) ScrollTo(offset float64) error {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return fmt.Errorf("scroll list %d to %v: %w", r.id, offset, ui.ErrInvalidValue)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRendered {
		return ErrNotAttached
	}
	r.state = StateComputing
	return r.renderLocked(offset)
}

func (r *Region) ScrollToIndex(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRendered {
		return ErrNotAttached
	}
	r.state = StateComputing
	n := r.src.Len()
	i = max(0, min(i, n))
	return r.renderLocked(r.startOfLocked(i))
}

// HandleScroll applies a scroll event from the surface. The payload carries
// the new offset in pixels.
func (r *Region) HandleScroll(ev ui.Event) error {
	offset, ok := ev.Number("offset")
	if !ok {
		return fmt.Errorf("scroll on list %d: offset missing", r.id)
	}
	return r.ScrollTo(offset)
}

// Refresh re-materializes the current range after the source changed.
func (r *Region) Refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRendered {
		return ErrNotAttached
	}
	r.state = StateComputing
	r.prefix = nil
	for i, id := range r.items {
		if err := r.tree.Detach(id); err != nil {
			r.state = StateRendered
			return err
		}
		delete(r.items, i)
	}
	r.rng = Range{}
	return r.renderLocked(r.offset)
}

func (r *Region) renderLocked(offset float64) error {
	defer func() { r.state = StateRendered }()

	n := r.src.Len()
	if ext, ok := r.src.(Extenter); ok && len(r.prefix) != n+1 {
		r.measureLocked(ext, n)
	}
	total := r.startOfLocked(n)
	offset = max(0, min(offset, total-r.cfg.Viewport))
	next := r.rangeForLocked(offset, n)

	for i := r.rng.Start; i < r.rng.End; i++ {
		if next.Contains(i) {
			continue
		}
		if id, ok := r.items[i]; ok {
			if err := r.tree.Detach(id); err != nil {
				return fmt.Errorf("detach item %d: %w", i, err)
			}
			delete(r.items, i)
		}
	}
	r.rng = next
	r.offset = offset

	var errs []error
	for i := next.Start; i < next.End; i++ {
		if _, ok := r.items[i]; ok {
			continue
		}
		id, err := r.src.Build(r.tree, i)
		if err != nil {
			errs = append(errs, fmt.Errorf("build item %d: %w", i, err))
			continue
		}
		if err := r.tree.SetProperty(id, PropItemIndex, ui.Int(i)); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.tree.Attach(r.id, id, r.positionLocked(i)); err != nil {
			errs = append(errs, fmt.Errorf("attach item %d: %w", i, err))
			continue
		}
		r.items[i] = id
	}
	if err := r.tree.SetProperty(r.id, "offset", ui.Number(offset)); err != nil {
		errs = append(errs, err)
	}
	if err := r.tree.SetProperty(r.id, "total", ui.Number(total)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// positionLocked is the child index item i takes: the number of
// materialized items before it.
func (r *Region) positionLocked(i int) int {
	pos := 0
	for j := r.rng.Start; j < i; j++ {
		if _, ok := r.items[j]; ok {
			pos++
		}
	}
	return pos
}

func (r *Region) measureLocked(ext Extenter, n int) {
	r.prefix = make([]float64, n+1)
	for i := 0; i < n; i++ {
		r.prefix[i+1] = r.prefix[i] + max(0, ext.Extent(i))
	}
}

func (r *Region) startOfLocked(i int) float64 {
	if r.prefix != nil {
		return r.prefix[min(i, len(r.prefix)-1)]
	}
	return float64(i) * r.cfg.ItemExtent
}

func (r *Region) rangeForLocked(offset float64, n int) Range {
	if n == 0 {
		return Range{}
	}
	bottom := offset + r.cfg.Viewport
	var start, end int
	if r.prefix != nil {
		start = sort.Search(n+1, func(i int) bool { return r.prefix[i] > offset }) - 1
		end = sort.Search(n+1, func(i int) bool { return r.prefix[i] >= bottom })
	} else {
		start = int(math.Floor(offset / r.cfg.ItemExtent))
		end = int(math.Ceil(bottom / r.cfg.ItemExtent))
	}
	start = max(0, min(start, n-1))
	end = max(start+1, min(end, n))
	return Range{Start: start, End: end}
}
