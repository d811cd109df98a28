// Package taskevent defines the task event stream: the TaskEventId format,
// the TaskEvent discriminated type, and a bounded-replay broadcast stream
// used to fan events out to resumable subscribers.
package taskevent

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"
)

var idPattern = regexp.MustCompile(`^task_(\d+)_(\d+)$`)

// generator produces monotonic TaskEventIds of the form task_<unixMilli>_<seq>.
// Two IDs generated at the same millisecond get increasing seq; a later
// millisecond resets seq to 0. Grounded on the teacher's EventEmitter atomic
// sequence counter, adapted to the spec's string ID format instead of a bare
// uint64.
type generator struct {
	mu       sync.Mutex
	lastTime int64
	seq      uint64
}

// newGenerator returns a fresh monotonic TaskEventId generator.
func newGenerator() *generator {
	return &generator{}
}

func (g *generator) next(nowUnixMilli int64) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if nowUnixMilli == g.lastTime {
		g.seq++
	} else {
		g.lastTime = nowUnixMilli
		g.seq = 0
	}
	return fmt.Sprintf("task_%d_%d", g.lastTime, g.seq)
}

// Next generates the next TaskEventId using the current wall clock.
func Next() string {
	return defaultGenerator.next(time.Now().UnixMilli())
}

var defaultGenerator = newGenerator()

// Parse decomposes a TaskEventId into its timestamp and sequence components.
// Returns ok=false if id is not well-formed.
func Parse(id string) (timestampMs int64, seq uint64, ok bool) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	sq, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return ts, sq, true
}

// IsAfter reports whether id a was generated after id b. Malformed IDs sort
// before well-formed ones.
func IsAfter(a, b string) bool {
	ta, sa, okA := Parse(a)
	tb, sb, okB := Parse(b)
	if !okA {
		return false
	}
	if !okB {
		return true
	}
	if ta != tb {
		return ta > tb
	}
	return sa > sb
}
