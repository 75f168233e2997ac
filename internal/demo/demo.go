package demo

import (
	"context"
	"fmt"
	"strconv"

	"livepage/internal/session"
	"livepage/internal/ui"
	"livepage/internal/ui/vlist"
)

type Options struct {
	// Rows is the size of the virtualized list source.
	Rows int
	// BulkRows is how many nodes the bulk add button appends.
	BulkRows int
	// Batch is how many bulk nodes are flushed per message.
	Batch int
	// Viewport and RowHeight size the list region in pixels.
	Viewport  float64
	RowHeight float64
}

func DefaultOptions() Options {
	return Options{
		Rows:      5000,
		BulkRows:  5000,
		Batch:     500,
		Viewport:  400,
		RowHeight: 24,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Rows <= 0 {
		o.Rows = def.Rows
	}
	if o.BulkRows <= 0 {
		o.BulkRows = def.BulkRows
	}
	if o.Batch <= 0 {
		o.Batch = def.Batch
	}
	if o.Viewport <= 0 {
		o.Viewport = def.Viewport
	}
	if o.RowHeight <= 0 {
		o.RowHeight = def.RowHeight
	}
	return o
}

// Event kinds the page listens to.
const (
	EventClick  = "click"
	EventChange = "change"
	EventScroll = "scroll"
)

type rowSource struct {
	n int
}

func (r rowSource) Len() int { return r.n }

func (r rowSource) Build(t *ui.Tree, i int) (ui.NodeID, error) {
	return ui.BuildText(t, "Row "+strconv.Itoa(i+1))
}

// page holds the node ids of one session's demo page.
type page struct {
	opts Options

	count    int
	counter  ui.NodeID
	greeting ui.NodeID
	controls ui.NodeID
	bulk     ui.NodeID
	status   ui.NodeID
	region   *vlist.Region
}

// Entry returns the entry callback that builds the demo page.
func Entry(opts Options) session.EntryFunc {
	opts = opts.withDefaults()
	return func(ctx context.Context, s *session.Session) error {
		p := &page{opts: opts}
		if err := p.build(s); err != nil {
			return err
		}
		return s.Flush(ctx)
	}
}

func (p *page) build(s *session.Session) error {
	t := s.Tree()
	var err error
	var title, inc, dec, name, disable, add, clearBtn ui.NodeID

	if title, err = ui.BuildText(t, "livepage"); err != nil {
		return err
	}
	if err := t.SetProperty(title, "style", ui.Enum("heading")); err != nil {
		return err
	}
	if p.counter, err = ui.BuildText(t, "0"); err != nil {
		return err
	}
	if inc, err = ui.BuildButton(t, "+1"); err != nil {
		return err
	}
	if dec, err = ui.BuildButton(t, "-1"); err != nil {
		return err
	}
	if p.controls, err = ui.BuildRow(t, p.counter, inc, dec); err != nil {
		return err
	}
	if name, err = ui.BuildTextField(t, "Name", ""); err != nil {
		return err
	}
	if p.greeting, err = ui.BuildText(t, "Hello!"); err != nil {
		return err
	}
	if disable, err = ui.BuildCheckbox(t, "Disable counter", false); err != nil {
		return err
	}
	if add, err = ui.BuildButton(t, fmt.Sprintf("Add %d rows", p.opts.BulkRows)); err != nil {
		return err
	}
	if clearBtn, err = ui.BuildButton(t, "Clear"); err != nil {
		return err
	}
	if p.status, err = ui.BuildText(t, ""); err != nil {
		return err
	}
	if err := t.SetProperty(p.status, "color", ui.Color("#6b7280")); err != nil {
		return err
	}
	actions, err := ui.BuildRow(t, add, clearBtn, p.status)
	if err != nil {
		return err
	}
	if p.bulk, err = ui.BuildColumn(t); err != nil {
		return err
	}
	p.region, err = vlist.New(t, rowSource{n: p.opts.Rows}, vlist.Config{Viewport: p.opts.Viewport, ItemExtent: p.opts.RowHeight})
	if err != nil {
		return err
	}
	layout, err := ui.BuildColumn(t, title, p.controls, name, p.greeting, disable, actions)
	if err != nil {
		return err
	}
	if err := t.Attach(ui.RootID, layout, -1); err != nil {
		return err
	}
	if err := p.region.Attach(layout, -1); err != nil {
		return err
	}
	if err := t.Attach(layout, p.bulk, -1); err != nil {
		return err
	}

	bindings := []struct {
		node    ui.NodeID
		kind    string
		handler session.HandlerFunc
	}{
		{inc, EventClick, p.step(1)},
		{dec, EventClick, p.step(-1)},
		{name, EventChange, p.rename},
		{disable, EventChange, p.toggle},
		{add, EventClick, p.addRows},
		{clearBtn, EventClick, p.clearRows},
		{p.region.ID(), EventScroll, p.scroll},
	}
	for _, b := range bindings {
		if err := s.On(b.node, b.kind, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func (p *page) step(delta int) session.HandlerFunc {
	return func(ctx context.Context, s *session.Session, _ ui.Event) error {
		p.count += delta
		if err := s.Tree().SetProperty(p.counter, "value", ui.String(strconv.Itoa(p.count))); err != nil {
			return err
		}
		return s.Flush(ctx)
	}
}

func (p *page) rename(ctx context.Context, s *session.Session, ev ui.Event) error {
	name, _ := ev.Text("value")
	greeting := "Hello!"
	if name != "" {
		greeting = "Hello, " + name + "!"
	}
	if err := s.Tree().SetProperty(p.greeting, "value", ui.String(greeting)); err != nil {
		return err
	}
	return s.Flush(ctx)
}

func (p *page) toggle(ctx context.Context, s *session.Session, ev ui.Event) error {
	checked := false
	if v, ok := ev.Payload["value"]; ok {
		checked, _ = v.Truth()
	}
	if err := s.Tree().SetDisabled(p.controls, checked); err != nil {
		return err
	}
	return s.Flush(ctx)
}

// addRows appends BulkRows text nodes, flushing every Batch additions so no
// single message outgrows the size limit.
func (p *page) addRows(ctx context.Context, s *session.Session, _ ui.Event) error {
	t := s.Tree()
	existing, err := t.Children(p.bulk)
	if err != nil {
		return err
	}
	base := len(existing)
	for i := 0; i < p.opts.BulkRows; i++ {
		id, err := ui.BuildText(t, "Item "+strconv.Itoa(base+i+1))
		if err != nil {
			return err
		}
		if err := t.Attach(p.bulk, id, -1); err != nil {
			return err
		}
		if (i+1)%p.opts.Batch == 0 {
			if err := s.Flush(ctx); err != nil {
				return err
			}
		}
	}
	if err := t.SetProperty(p.status, "value", ui.String(fmt.Sprintf("%d items", base+p.opts.BulkRows))); err != nil {
		return err
	}
	return s.Flush(ctx)
}

func (p *page) clearRows(ctx context.Context, s *session.Session, _ ui.Event) error {
	t := s.Tree()
	children, err := t.Children(p.bulk)
	if err != nil {
		return err
	}
	for _, id := range children {
		if err := t.Detach(id); err != nil {
			return err
		}
	}
	if err := t.SetProperty(p.status, "value", ui.String("")); err != nil {
		return err
	}
	return s.Flush(ctx)
}

func (p *page) scroll(ctx context.Context, s *session.Session, ev ui.Event) error {
	if err := p.region.HandleScroll(ev); err != nil {
		return err
	}
	return s.Flush(ctx)
}
