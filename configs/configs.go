// Package configs holds the timing constants, debug flags and small
// panic/trace helpers shared by every node: package-level flags gating
// fmt-based print helpers, plus the assertion and error-check helpers used
// to guard programmer invariants.
package configs

import (
	"fmt"
	"os"
	"time"
)

// Debugging parameters, toggled by the CLI or by tests.
var (
	Verbose = false
	Trace   = false
)

// Protocol timing constants.
const (
	// HotPollInterval is the sleep between empty non-blocking polls on the
	// coordinator's hot paths (request pickup, vote collection).
	HotPollInterval = 1 * time.Millisecond
	// VoteCollectionTimeout bounds how long the coordinator waits for
	// participant votes before deciding on whatever it has.
	VoteCollectionTimeout = 200 * time.Millisecond
	// DecisionWaitTimeout bounds how long a participant waits for the
	// coordinator's global decision once it has voted.
	DecisionWaitTimeout = 2000 * time.Millisecond
	// ResultWaitTimeout bounds how long a client waits for its result.
	ResultWaitTimeout = 2000 * time.Millisecond
	// ParticipantDecisionPollInterval is the sleep between empty polls
	// while a participant awaits the global decision.
	ParticipantDecisionPollInterval = 10 * time.Millisecond
	// ExitDrainPollInterval is the sleep between empty polls while a node
	// drains its channel waiting for CoordinatorExit.
	ExitDrainPollInterval = 100 * time.Millisecond
	// ShutdownGracePeriod is how long the coordinator waits after
	// broadcasting CoordinatorExit before producing its status report, to
	// give peers a chance to observe it.
	ShutdownGracePeriod = 50 * time.Millisecond
)

// Tracef prints a fine-grained trace line if Trace is enabled.
func Tracef(format string, args ...any) {
	if Trace {
		fmt.Printf("[trace] "+format+"\n", args...)
	}
}

// Debugf prints a debug line if Verbose is enabled.
func Debugf(format string, args ...any) {
	if Verbose {
		fmt.Printf("[debug] "+format+"\n", args...)
	}
}

// Warnf always prints a warning; warnings are never suppressed since they
// flag recoverable-but-notable conditions.
func Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[warn] "+format+"\n", args...)
}

// Assert panics with msg if cond is false. Reserved for programmer errors
// such as registering a peer after the coordinator has left Quiescent --
// never for recoverable protocol conditions.
func Assert(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// CheckErr panics if err is non-nil. Used only for conditions that indicate
// a broken local invariant (e.g. a corrupt log file), never for ordinary
// channel/timeout errors, which are always converted to counters.
func CheckErr(err error) {
	if err != nil {
		panic(err)
	}
}
