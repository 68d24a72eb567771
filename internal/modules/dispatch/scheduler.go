// README: Timer abstraction so tests can run expiry synchronously instead of
// sleeping out real acceptance windows.
package dispatch

import "time"

type Scheduler interface {
	After(d time.Duration, fn func())
}

// TimerScheduler fires on real wall-clock timers.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
