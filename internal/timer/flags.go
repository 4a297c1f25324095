package timer

// Flags is a bitfield controlling how a timer entry is scheduled and
// re-armed. The bit values are part of this module's stable public
// surface: callers persist and compare them directly.
type Flags uint32

const (
	// FlagMilliseconds interprets Delay/Interval as milliseconds. This is
	// the default unit when neither time-unit flag is set.
	FlagMilliseconds Flags = 1 << iota
	// FlagMicroseconds interprets Delay/Interval as microseconds.
	FlagMicroseconds
	// FlagDelete removes the entry after this tick, without re-arming.
	FlagDelete
	// FlagDeleteAuto sets FlagDelete automatically once Repeat is
	// exhausted or the entry is canceled.
	FlagDeleteAuto
	// FlagCanceled fires the callback exactly once more with this bit
	// set, skipping the normal repeat/re-arm bookkeeping, then the entry
	// is either deleted (if FlagDelete/FlagDeleteAuto applies) or left
	// permanently disabled.
	FlagCanceled
	// FlagIntervalFixed re-arms relative to the entry's last trigger
	// timestamp instead of the current time, so a late callback does not
	// push subsequent triggers later — the schedule catches up.
	FlagIntervalFixed
	// FlagGet makes Ctl a read: the existing entry is copied back into
	// the caller's struct. If FlagGet is the only flag set, Ctl returns
	// without modifying the entry.
	FlagGet
)

// AllowedFlags is the set of flag bits preserved across a re-arm; every
// other bit (notably FlagCanceled, which is one-shot) is stripped once
// consumed.
const AllowedFlags = FlagMilliseconds | FlagMicroseconds | FlagDelete | FlagDeleteAuto | FlagIntervalFixed
