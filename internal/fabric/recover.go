package fabric

import (
	"fmt"
	"runtime/debug"

	"github.com/lumencore/lumencore/pkg/logging"
)

// safeGo runs fn in its own goroutine, recovering any panic so a broken
// event listener or scheduled task cannot bring down the fabric. This is
// adapted from the teacher's SafeGo/RecoverFromPanic
// (pkg/eventsourcing/recover.go); unlike the teacher it has no global
// handler registry since the fabric's own logger is the single sink, and
// — per spec.md §4.2/§7 — it is never used to wrap an output driver's
// send_updates call, where a panic must stay fatal.
func safeGo(label string, fn func()) {
	go func() {
		defer recoverAndLog(label)
		fn()
	}()
}

func recoverAndLog(label string) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		logging.Error("recovered panic in %s: %v\n%s", label, toError(r), stack)
	}
}

func toError(r interface{}) error {
	switch v := r.(type) {
	case error:
		return v
	default:
		return fmt.Errorf("%v", v)
	}
}
