// Package bars incrementally aggregates ticks into multi-timeframe OHLC
// bars and maintains the rolling completed-bar history handed to workers.
package bars

import (
	"fmt"
	"time"

	"finiex/internal/core"
)

// Controller renders bars for one symbol across the timeframes its
// registered workers require. It is scenario-local and driven only by the
// tick loop, so it needs no locking.
type Controller struct {
	symbol     string
	timeframes []core.Timeframe
	current    map[core.Timeframe]*core.Bar
	history    map[core.Timeframe][]core.Bar
	alignCache *core.AlignCache

	// maxHistory caps the per-timeframe history length; 0 keeps the
	// full run. When set it must cover warmup plus the largest lookback
	// any worker requests.
	maxHistory int
}

// NewController creates a bar controller for the given symbol.
func NewController(symbol string, maxHistory int) *Controller {
	return &Controller{
		symbol:     symbol,
		current:    make(map[core.Timeframe]*core.Bar),
		history:    make(map[core.Timeframe][]core.Bar),
		alignCache: core.NewAlignCache(),
		maxHistory: maxHistory,
	}
}

// RegisterTimeframes activates rendering for the given timeframes.
// Duplicates are ignored; the active set stays sorted ascending.
func (c *Controller) RegisterTimeframes(tfs []core.Timeframe) {
	for _, tf := range tfs {
		if _, ok := c.history[tf]; ok {
			continue
		}
		c.history[tf] = nil
		c.timeframes = append(c.timeframes, tf)
	}
	core.SortTimeframes(c.timeframes)
}

// Timeframes returns the active timeframes in ascending order.
func (c *Controller) Timeframes() []core.Timeframe {
	return c.timeframes
}

// InjectWarmup seeds the history of one timeframe with pre-rendered bars,
// oldest first, before the first tick is processed. Injected bars are
// always marked complete.
func (c *Controller) InjectWarmup(tf core.Timeframe, warmup []core.Bar) error {
	if _, ok := c.history[tf]; !ok {
		return fmt.Errorf("timeframe %s not registered", tf)
	}
	for _, bar := range warmup {
		bar.IsComplete = true
		c.append(tf, bar)
	}
	return nil
}

// OnTick folds one tick into every active timeframe and returns the
// current-bar snapshot.
func (c *Controller) OnTick(tick core.Tick) core.BarSet {
	mid := tick.Mid()
	snapshot := make(core.BarSet, len(c.timeframes))

	for _, tf := range c.timeframes {
		barOpen := c.alignCache.BarOpen(tick.Timestamp, tf)
		cur := c.current[tf]

		if cur == nil || core.IsBarComplete(cur.Timestamp, tick.Timestamp, tf) {
			if cur != nil {
				cur.IsComplete = true
				c.append(tf, *cur)
				c.fillGap(tf, cur, barOpen)
			}
			c.current[tf] = &core.Bar{
				Symbol:    c.symbol,
				Timeframe: tf,
				Timestamp: barOpen,
				Open:      mid,
				High:      mid,
				Low:       mid,
				Close:     mid,
				Volume:    tick.Volume,
				TickCount: 1,
				BarType:   core.BarTypeReal,
			}
		} else {
			if mid.GreaterThan(cur.High) {
				cur.High = mid
			}
			if mid.LessThan(cur.Low) {
				cur.Low = mid
			}
			cur.Close = mid
			cur.Volume += tick.Volume
			cur.TickCount++
		}
		snapshot[tf] = *c.current[tf]
	}
	return snapshot
}

// fillGap synthesizes flat bars between the just-completed bar and the
// next real bar open. Weekend and holiday gaps become deterministic runs
// of synthetic bars carrying the last known close.
func (c *Controller) fillGap(tf core.Timeframe, completed *core.Bar, nextOpen time.Time) {
	step := core.TimeframeDuration(tf)
	for open := completed.Timestamp.Add(step); open.Before(nextOpen); open = open.Add(step) {
		c.append(tf, core.Bar{
			Symbol:     c.symbol,
			Timeframe:  tf,
			Timestamp:  open,
			Open:       completed.Close,
			High:       completed.Close,
			Low:        completed.Close,
			Close:      completed.Close,
			Volume:     0,
			TickCount:  0,
			IsComplete: true,
			BarType:    core.BarTypeSynthetic,
		})
	}
}

func (c *Controller) append(tf core.Timeframe, bar core.Bar) {
	h := append(c.history[tf], bar)
	if c.maxHistory > 0 && len(h) > c.maxHistory {
		// Compact so the dropped prefix can be collected.
		trimmed := make([]core.Bar, c.maxHistory)
		copy(trimmed, h[len(h)-c.maxHistory:])
		h = trimmed
	}
	c.history[tf] = h
}

// History returns the completed-bar history per timeframe. The slices are
// views into the controller's storage; callers must treat them read-only.
func (c *Controller) History() core.BarHistorySet {
	out := make(core.BarHistorySet, len(c.history))
	for tf, h := range c.history {
		out[tf] = h
	}
	return out
}

// CurrentBars returns the latest current-bar snapshot.
func (c *Controller) CurrentBars() core.BarSet {
	out := make(core.BarSet, len(c.current))
	for tf, bar := range c.current {
		out[tf] = *bar
	}
	return out
}
