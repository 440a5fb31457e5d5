// Package caller prints Go call stacks. The kernel's only fatal-error
// reporting path (assertion failures, kernel-mode faults) dumps the
// call chain this way before panicking.
package caller

import (
	"fmt"
	"runtime"
)

// Callerdump prints the call stack starting at the given depth.
func Callerdump(start int) {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	fmt.Printf("%s", s)
}

// Fatal dumps the call chain and panics with msg. Every kernel-fatal
// condition (corrupted invariant, kernel-mode fault) goes through here
// rather than a plain panic so the stack is visible before the process
// exits.
func Fatal(msg string) {
	Callerdump(2)
	panic(msg)
}
