// Package stats provides opt-in cycle/event counters for scheduler and
// lock contention. Counting is compiled out (the Stats const is false)
// unless a build wants the overhead.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
)

// Stats gates whether Counter_t.Inc does anything; flip to true (and
// rebuild) to turn on scheduler/lock-contention counting.
const Stats = false

// Counter_t is a statistical counter, e.g. "number of mutex contentions"
// or "number of timer ticks serviced".
type Counter_t int64

// Inc increments the counter when Stats is enabled.
func (c *Counter_t) Inc() {
	if Stats {
		atomic.AddInt64((*int64)(c), 1)
	}
}

// Add adds delta to the counter when Stats is enabled.
func (c *Counter_t) Add(delta int64) {
	if Stats {
		atomic.AddInt64((*int64)(c), delta)
	}
}

// Get reads the counter's current value regardless of Stats, so tests
// can assert on it when Stats has been enabled for that build.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Stats2String converts a struct of Counter_t fields to a printable
// string, used by the kernel's debug surface to dump scheduler/lock
// contention counters.
func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		if strings.HasSuffix(v.Field(i).Type().String(), "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
	}
	return s + "\n"
}
