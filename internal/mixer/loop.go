package mixer

import (
	"time"

	"github.com/lumencore/lumencore/internal/fabric"
	"github.com/lumencore/lumencore/internal/patcher"
	"github.com/lumencore/lumencore/pkg/logging"
)

// TickPeriod is the render loop's target period (spec §4.3/§5/§9: "always
// run at most every 18ms").
const TickPeriod = 18 * time.Millisecond

// Metrics receives render-loop observability events. Implementations live
// in internal/metrics (Prometheus-backed); a nil Metrics is replaced with a
// no-op so the loop never needs a nil check at each call site.
type Metrics interface {
	ObserveTick(duration time.Duration, animated bool)
	ObserveCoalesced(count int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration, bool) {}
func (noopMetrics) ObserveCoalesced(int)            {}

// Loop is the render loop described by spec §4.3: it blends the mixer's
// active layer stack atop the patcher's base layer every tick, writes the
// result to every driver, and rate-limits itself to TickPeriod, coalescing
// any notifications that arrive faster than that. It is grounded on the
// teacher's channel-based refresh signal (internal/core/app.go's
// eventChan) generalized to a fixed-cadence render loop rather than an
// on-demand UI refresh.
type Loop struct {
	mixer   *Mixer
	patcher *patcher.Patcher
	bus     *fabric.EventBus
	metrics Metrics
}

// NewLoop constructs a render loop. metrics may be nil.
func NewLoop(mixer *Mixer, p *patcher.Patcher, bus *fabric.EventBus, metrics Metrics) *Loop {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Loop{mixer: mixer, patcher: p, bus: bus, metrics: metrics}
}

// Run executes the render loop until a shutdown sentinel is observed.
// Intended to be registered as a fabric shutdown blocker
// (shutdown.SpawnBlocker("render-loop", loop.Run)).
func (l *Loop) Run() {
	patchCh, unsubscribe := l.bus.SubscribeTyped(patcher.EventPatchUpdated, fabric.NoCriteria, 32)
	defer unsubscribe()
	notifyCh := l.mixer.RenderNotifyChannel()

	base, meta := l.refresh()
	animated := false

	for {
		tickStart := time.Now()
		frame, tickAnimated := l.mixer.ComputeBlend(base, meta)
		if err := l.patcher.WriteValues(frame, true); err != nil {
			// A non-panic error here means a driver violated the
			// "send_updates is infallible" contract (spec §4.2): log and
			// keep rendering rather than treat it as fatal. Only a panic
			// inside send_updates is fatal (spec §4.2/§7), and that
			// propagates out of WriteValues uncaught.
			logging.Error("render loop: write_values: %v", err)
		}
		animated = tickAnimated
		l.metrics.ObserveTick(time.Since(tickStart), animated)

		remaining := TickPeriod - time.Since(tickStart)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)

		shuttingDown, refreshed := l.waitForTick(timer, patchCh, notifyCh, animated)
		if shuttingDown {
			timer.Stop()
			return
		}
		if refreshed {
			base, meta = l.refresh()
		}
	}
}

// waitForTick blocks until the tick's rate limit has elapsed, consuming any
// patch_updated or notification deliveries that arrive in the meantime, per
// spec §4.3:
//   - after an animated tick: sleep until the timer fires, draining any
//     notification that arrives during the sleep so it is not serviced
//     again as a second, redundant tick;
//   - after a non-animated tick: sleep until the timer fires; if a poke or a
//     patch_updated arrived during the sleep, tick once now (all such pokes
//     coalesced into that one tick), otherwise block on the notification
//     handle until poked.
//
// A patch_updated delivery at any point sets refreshed=true; a shutdown
// sentinel (carried on either channel, since EventBus.Shutdown broadcasts
// to every listener) sets shuttingDown=true and returns immediately.
func (l *Loop) waitForTick(timer *time.Timer, patchCh <-chan fabric.TypedDelivery, notifyCh <-chan struct{}, wasAnimated bool) (shuttingDown, refreshed bool) {
	coalesced := 0
	for {
		select {
		case d := <-patchCh:
			if d.Shutdown {
				return true, refreshed
			}
			refreshed = true
			continue
		case <-notifyCh:
			// A poke before the rate limit has elapsed is absorbed here
			// (counted, not acted on) so it doesn't trigger an extra tick
			// once per poke.
			coalesced++
			continue
		case <-timer.C:
			if coalesced > 0 {
				l.metrics.ObserveCoalesced(coalesced)
			}
			if wasAnimated || coalesced > 0 || refreshed {
				return false, refreshed
			}
			return l.waitForNotification(patchCh, notifyCh, refreshed)
		}
	}
}

// waitForNotification is the second half of a non-animated tick's wait: the
// 18ms rate limit has already elapsed, so the loop now blocks until poked
// (or interrupted by a patch change or shutdown).
func (l *Loop) waitForNotification(patchCh <-chan fabric.TypedDelivery, notifyCh <-chan struct{}, refreshed bool) (shuttingDown, refreshedOut bool) {
	select {
	case d := <-patchCh:
		if d.Shutdown {
			return true, refreshed
		}
		return false, true
	case <-notifyCh:
		return false, refreshed
	}
}

func (l *Loop) refresh() (patcher.FrameValues, patcher.BlendMeta) {
	base, err := l.patcher.FullMixerOutput()
	if err != nil {
		logging.Error("render loop: refreshing base layer: %v", err)
		base = patcher.FrameValues{}
	}
	meta, err := l.patcher.FullMixerBlendingData()
	if err != nil {
		logging.Error("render loop: refreshing blending metadata: %v", err)
		meta = patcher.BlendMeta{}
	}
	l.mixer.CleanupOnPatchChange(base)
	return base, meta
}
