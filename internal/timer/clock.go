package timer

import "time"

// Clock supplies the current time to a Queue. Production code uses
// realClock; tests inject a fake so interval math can be checked without
// sleeping.
type Clock interface {
	NowMicro() int64
}

type realClock struct{}

func (realClock) NowMicro() int64 { return time.Now().UnixMicro() }
