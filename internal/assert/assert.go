// Package assert implements the contract-check layer: a process-global
// stack of user-installed handlers invoked whenever a precondition is
// violated. The top handler decides whether the runtime panics or whether
// control is transferred elsewhere (a handler may panic with its own
// sentinel to unwind to a recovery point).
package assert

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Kind classifies a contract violation
type Kind int

const (
	// OutOfBounds indicates an index or pointer outside a valid range
	OutOfBounds Kind = iota
	// BadAlignment indicates a non-power-of-two or mismatched alignment
	BadAlignment
	// SizeMismatch indicates a deallocation or resize with the wrong size
	SizeMismatch
	// EmptyAccess indicates reading front/back of an empty container
	EmptyAccess
	// NilArgument indicates a nil pointer where a value is required
	NilArgument
	// DoubleFree indicates a slot or block freed twice
	DoubleFree
	// CapacityExceeded indicates a _stable operation without enough capacity
	CapacityExceeded
	// MemoryExhausted indicates a fatal allocation failure
	MemoryExhausted
	// InvalidState indicates a broken internal invariant
	InvalidState
)

func (k Kind) String() string {
	switch k {
	case OutOfBounds:
		return "out of bounds"
	case BadAlignment:
		return "bad alignment"
	case SizeMismatch:
		return "size mismatch"
	case EmptyAccess:
		return "empty access"
	case NilArgument:
		return "nil argument"
	case DoubleFree:
		return "double free"
	case CapacityExceeded:
		return "capacity exceeded"
	case MemoryExhausted:
		return "memory exhausted"
	case InvalidState:
		return "invalid state"
	default:
		return "unknown"
	}
}

// Location identifies the call site of a failed check
type Location struct {
	File     string
	Line     int
	Function string
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Function)
}

// Violation is the value describing a failed contract check.
// It implements error so handlers can propagate it directly.
type Violation struct {
	Kind    Kind
	Expr    string
	Message string
	Loc     Location
}

func (v Violation) Error() string {
	return fmt.Sprintf("contract violation [%s]: %s (%s) at %s", v.Kind, v.Message, v.Expr, v.Loc)
}

// Handler is invoked with the violation; returning true makes the runtime
// panic with the violation afterwards. A handler may panic itself to
// transfer control.
type Handler func(v Violation) bool

var (
	mu       sync.Mutex
	handlers []Handler
	logger   = zap.NewNop()
)

// SetLogger replaces the logger used by the default handler.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// Push installs h as the new top-of-stack handler.
func Push(h Handler) {
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, h)
}

// Pop removes the top-of-stack handler.
func Pop() {
	mu.Lock()
	defer mu.Unlock()
	if len(handlers) == 0 {
		panic("assert: handler stack underflow")
	}
	handlers = handlers[:len(handlers)-1]
}

// Scoped pushes h and returns the function that pops it. Intended for
// defer:
//
//	defer assert.Scoped(h)()
func Scoped(h Handler) func() {
	Push(h)
	return Pop
}

func top() Handler {
	mu.Lock()
	defer mu.Unlock()
	if len(handlers) == 0 {
		return nil
	}
	return handlers[len(handlers)-1]
}

// defaultHandler logs the violation and requests a panic.
func defaultHandler(v Violation) bool {
	mu.Lock()
	l := logger
	mu.Unlock()
	l.Error("contract violation",
		zap.String("kind", v.Kind.String()),
		zap.String("expr", v.Expr),
		zap.String("message", v.Message),
		zap.String("location", v.Loc.String()),
	)
	return true
}

// Here captures the caller's source location. skip counts stack frames
// above the caller of Here.
func Here(skip int) Location {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{File: "unknown"}
	}
	loc := Location{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		loc.Function = fn.Name()
	}
	return loc
}

// Fail reports a violated contract at the caller's location.
func Fail(kind Kind, expr, msg string) {
	fail(kind, expr, msg, 2)
}

// Failf is Fail with a formatted message.
func Failf(kind Kind, expr, format string, args ...any) {
	fail(kind, expr, fmt.Sprintf(format, args...), 2)
}

// That checks cond and reports a violation when it is false.
func That(cond bool, kind Kind, expr, msg string) {
	if cond {
		return
	}
	fail(kind, expr, msg, 2)
}

// Thatf is That with a formatted message.
func Thatf(cond bool, kind Kind, expr, format string, args ...any) {
	if cond {
		return
	}
	fail(kind, expr, fmt.Sprintf(format, args...), 2)
}

func fail(kind Kind, expr, msg string, skip int) {
	v := Violation{Kind: kind, Expr: expr, Message: msg, Loc: Here(skip)}
	h := top()
	if h == nil {
		h = defaultHandler
	}
	if h(v) {
		panic(v)
	}
}
