// Package scheduler turns cron specs and one-shot timers into task engine
// submissions. It never runs jobs itself.
//
// Cron specs accept an optional seconds field ("0 * * * * *") and are
// evaluated in the configured location (IST unless overridden). One-shot
// timers are keyed by name, so a family of timers sharing a prefix
// ("poll/<session>/") can be cancelled together.
package scheduler
