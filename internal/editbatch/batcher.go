package editbatch

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultDebounce is the idle window after the last enqueued action before
// a batch is flushed (trailing-edge debounce).
const DefaultDebounce = 500 * time.Millisecond

// ActionType tags one kind of interactive edit.
type ActionType string

const (
	ActionToggleWidget    ActionType = "toggle_widget"
	ActionRenameWidget    ActionType = "rename_widget"
	ActionSwitchChartType ActionType = "switch_chart_type"
	ActionSetDensity      ActionType = "set_density"
	ActionSetPalette      ActionType = "set_palette"
	ActionReorderWidgets  ActionType = "reorder_widgets"
)

// Action is one discrete structural edit against a widget, or against the
// spec as a whole for density/palette/reorder.
type Action struct {
	Type     ActionType             `json:"type"`
	WidgetID string                 `json:"widget_id,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// key identifies the dedupe slot: within one debounce window, at most one
// action per (type, widget) pair survives, newest wins.
func (a Action) key() string {
	return string(a.Type) + "\x00" + a.WidgetID
}

// FlushFunc receives one drained batch. Implementations submit the batch
// as a single consolidated patch request.
type FlushFunc func(ctx context.Context, actions []Action) error

// ErrorFunc is notified when a batch send fails. The drained actions are
// handed back for display purposes only; the batcher never requeues them,
// so a failed batch requires an explicit user retry.
type ErrorFunc func(err error, actions []Action)

// Batcher coalesces bursts of user-driven edits into one network round
// trip. Each enqueue restarts the debounce window; on expiry the queue is
// drained atomically and handed to the flush function. Actions enqueued
// while a send is in flight accumulate into a fresh batch and are never
// merged into the outstanding one.
type Batcher struct {
	debounce time.Duration
	flush    FlushFunc
	onError  ErrorFunc
	baseCtx  context.Context

	mu       sync.Mutex
	queue    []Action
	index    map[string]int
	timer    *time.Timer
	inFlight bool
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(b *Batcher) { b.debounce = d }
}

// WithErrorFunc sets the failed-batch callback.
func WithErrorFunc(fn ErrorFunc) Option {
	return func(b *Batcher) { b.onError = fn }
}

// WithContext sets the context passed to timer-driven flushes.
func WithContext(ctx context.Context) Option {
	return func(b *Batcher) { b.baseCtx = ctx }
}

// NewBatcher creates a batcher that submits batches through flush.
func NewBatcher(flush FlushFunc, opts ...Option) *Batcher {
	b := &Batcher{
		debounce: DefaultDebounce,
		flush:    flush,
		baseCtx:  context.Background(),
		index:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add enqueues an action, replacing any earlier action of the same kind
// for the same target, and restarts the debounce window.
func (b *Batcher) Add(action Action) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i, ok := b.index[action.key()]; ok {
		b.queue[i] = action
	} else {
		b.index[action.key()] = len(b.queue)
		b.queue = append(b.queue, action)
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.debounce, b.onTimer)
}

// Convenience constructors for the edit vocabulary exposed to the
// dashboard editor.

func (b *Batcher) ToggleWidget(widgetID string, visible bool) {
	b.Add(Action{Type: ActionToggleWidget, WidgetID: widgetID,
		Payload: map[string]interface{}{"visible": visible}})
}

func (b *Batcher) RenameWidget(widgetID, title string) {
	b.Add(Action{Type: ActionRenameWidget, WidgetID: widgetID,
		Payload: map[string]interface{}{"title": title}})
}

func (b *Batcher) ChangeChartType(widgetID, chartType string) {
	b.Add(Action{Type: ActionSwitchChartType, WidgetID: widgetID,
		Payload: map[string]interface{}{"chart_type": chartType}})
}

func (b *Batcher) SetDensity(density string) {
	b.Add(Action{Type: ActionSetDensity,
		Payload: map[string]interface{}{"density": density}})
}

func (b *Batcher) SetPalette(palette string) {
	b.Add(Action{Type: ActionSetPalette,
		Payload: map[string]interface{}{"palette": palette}})
}

func (b *Batcher) ReorderWidgets(order []string) {
	ids := make([]interface{}, len(order))
	for i, id := range order {
		ids[i] = id
	}
	b.Add(Action{Type: ActionReorderWidgets,
		Payload: map[string]interface{}{"order": ids}})
}

// Pending reports how many actions are waiting in the current window.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// InFlight reports whether a batch send is currently outstanding.
func (b *Batcher) InFlight() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// FlushPendingActions cancels the pending timer and sends the accumulated
// batch immediately. Used on navigation-away. Returns the send error, if
// any; drained actions are not requeued either way.
func (b *Batcher) FlushPendingActions(ctx context.Context) error {
	batch := b.drain(true)
	if len(batch) == 0 {
		return nil
	}
	return b.send(ctx, batch)
}

// onTimer fires on debounce expiry. If a previous batch is still in
// flight, the window is re-armed so at most one send is outstanding.
func (b *Batcher) onTimer() {
	b.mu.Lock()
	if b.inFlight {
		b.timer = time.AfterFunc(b.debounce, b.onTimer)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	batch := b.drain(false)
	if len(batch) == 0 {
		return
	}

	if err := b.send(b.baseCtx, batch); err != nil {
		log.Printf(`{"level":"error","message":"Edit batch send failed","actions":%d,"error":"%v"}`, len(batch), err)
	}
}

// drain atomically empties the queue. The queue is cleared before the
// network call resolves, so actions added during the in-flight call start
// a fresh batch.
func (b *Batcher) drain(cancelTimer bool) []Action {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cancelTimer && b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	batch := b.queue
	b.queue = nil
	b.index = make(map[string]int)
	return batch
}

func (b *Batcher) send(ctx context.Context, batch []Action) error {
	b.mu.Lock()
	b.inFlight = true
	b.mu.Unlock()

	err := b.flush(ctx, batch)

	b.mu.Lock()
	b.inFlight = false
	b.mu.Unlock()

	if err != nil && b.onError != nil {
		b.onError(err, batch)
	}
	return err
}
