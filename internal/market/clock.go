package market

import "time"

// SystemClock reports the current wall-clock second as the unix
// timestamp and a synthetic monotonically increasing slot counter (one
// per 400ms, matching average Solana slot time) as the slot. Production
// deployments without a real slot source can use this directly; tests
// should supply a FixedClock instead so expiry assertions
// are deterministic.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() (slot uint64, unixTimestamp uint64) {
	now := time.Now()
	unixTimestamp = uint64(now.Unix())
	slot = uint64(now.Sub(c.start) / (400 * time.Millisecond))
	return
}

// FixedClock always reports the same reading, for deterministic tests.
type FixedClock struct {
	Slot          uint64
	UnixTimestamp uint64
}

func (c FixedClock) Now() (uint64, uint64) { return c.Slot, c.UnixTimestamp }
