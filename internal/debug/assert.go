package debug

import (
	"fmt"
	"runtime"
)

// Assert panics when truth is false. It is meant for invariants that are
// impossible to violate from the outside (marshal sizes, pool bounds);
// anything reachable from untrusted input must return an error instead.
func Assert(truth bool, msg ...string) {
	if len(msg) > 1 {
		panic("invalid assert args")
	}
	if !truth {
		msg := fmt.Sprintf("assertion failed(%s)", msg)
		// include the assertion location; due to panic recovery this
		// is otherwise buried in the middle of the panicking stack.
		if _, file, line, ok := runtime.Caller(1); ok {
			msg = fmt.Sprintf("%s:%d: %s", file, line, msg)
		}
		panic(msg)
	}
}
