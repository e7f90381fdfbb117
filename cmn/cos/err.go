// Package cos provides common low-level types and utilities shared by every
// package in the runtime: error kinds, ID generation, and name validation.
package cos

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	ratomic "sync/atomic"
	"sync"
	"syscall"

	"github.com/helioscore/cosim/cmn/debug"
	"github.com/helioscore/cosim/cmn/nlog"
)

// Error kinds the runtime distinguishes by type. Each is a small struct
// so callers can type switch / errors.As when propagation policy depends
// on kind (see broker's disconnect cascade and fedstate's error-callback
// dispatch).
type (
	ErrNameCollision struct{ Name string }
	ErrUnknownDest   struct{ Name string }
	ErrUnitMismatch  struct{ From, To string }
	ErrTypeCoercion  struct {
		Value any
		Want  string
	}
	ErrInvalidAlias struct{ Reason string }
	ErrConcurrentOp struct{ Op string }
	ErrTimeout      struct{ Op string }
	ErrUserException struct{ Cause error }
	ErrTransportFailure struct{ Peer string }

	// Errs accumulates up to a small fixed number of distinct errors,
	// de-duplicated by message, the way broker-side disconnect cascades
	// fold together many per-dependent failures into one report.
	Errs struct {
		errs []error
		cnt  int64
		mu   sync.Mutex
	}
)

func (e *ErrNameCollision) Error() string { return fmt.Sprintf("name collision: %q already registered", e.Name) }
func (e *ErrUnknownDest) Error() string   { return fmt.Sprintf("unknown destination: %q", e.Name) }
func (e *ErrUnitMismatch) Error() string {
	return fmt.Sprintf("incompatible units: %q -> %q", e.From, e.To)
}
func (e *ErrTypeCoercion) Error() string {
	return fmt.Sprintf("cannot coerce value %v to %s", e.Value, e.Want)
}
func (e *ErrInvalidAlias) Error() string    { return "invalid alias: " + e.Reason }
func (e *ErrConcurrentOp) Error() string    { return fmt.Sprintf("concurrent operation: %q already outstanding", e.Op) }
func (e *ErrTimeout) Error() string         { return fmt.Sprintf("timeout: %q did not complete in time", e.Op) }
func (e *ErrUserException) Error() string   { return fmt.Sprintf("user callback failed: %v", e.Cause) }
func (e *ErrUserException) Unwrap() error   { return e.Cause }
func (e *ErrTransportFailure) Error() string { return fmt.Sprintf("transport failure: peer %q disconnected", e.Peer) }

func NewErrNameCollision(name string) *ErrNameCollision   { return &ErrNameCollision{Name: name} }
func NewErrUnknownDest(name string) *ErrUnknownDest       { return &ErrUnknownDest{Name: name} }
func NewErrUnitMismatch(from, to string) *ErrUnitMismatch { return &ErrUnitMismatch{From: from, To: to} }
func NewErrTypeCoercion(v any, want string) *ErrTypeCoercion {
	return &ErrTypeCoercion{Value: v, Want: want}
}
func NewErrInvalidAlias(reason string) *ErrInvalidAlias  { return &ErrInvalidAlias{Reason: reason} }
func NewErrConcurrentOp(op string) *ErrConcurrentOp      { return &ErrConcurrentOp{Op: op} }
func NewErrTimeout(op string) *ErrTimeout                { return &ErrTimeout{Op: op} }
func NewErrUserException(cause error) *ErrUserException  { return &ErrUserException{Cause: cause} }
func NewErrTransportFailure(peer string) *ErrTransportFailure {
	return &ErrTransportFailure{Peer: peer}
}

func IsErrNameCollision(err error) bool { var e *ErrNameCollision; return errors.As(err, &e) }
func IsErrUnknownDest(err error) bool   { var e *ErrUnknownDest; return errors.As(err, &e) }
func IsErrUnitMismatch(err error) bool  { var e *ErrUnitMismatch; return errors.As(err, &e) }
func IsErrTypeCoercion(err error) bool  { var e *ErrTypeCoercion; return errors.As(err, &e) }
func IsErrInvalidAlias(err error) bool  { var e *ErrInvalidAlias; return errors.As(err, &e) }
func IsErrConcurrentOp(err error) bool  { var e *ErrConcurrentOp; return errors.As(err, &e) }
func IsErrTimeout(err error) bool       { var e *ErrTimeout; return errors.As(err, &e) }
func IsErrTransportFailure(err error) bool {
	var e *ErrTransportFailure
	return errors.As(err, &e)
}

// Errs

const maxErrs = 4

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}

func (e *Errs) Error() (s string) {
	cnt := e.Cnt()
	if cnt == 0 {
		return
	}
	e.mu.Lock()
	var err error
	if cnt = len(e.errs); cnt > 0 {
		err = e.errs[0]
	}
	e.mu.Unlock()
	if err == nil {
		return
	}
	if cnt > 1 {
		err = fmt.Errorf("%v (and %d more error%s)", err, cnt-1, Plural(cnt-1))
	}
	return err.Error()
}

//
// IS-syscall helpers — classify a connection error by its syscall errno.
// No package in this module calls them.
//

func IsErrConnectionRefused(err error) bool { return errors.Is(err, syscall.ECONNREFUSED) }
func IsErrConnectionReset(err error) bool   { return errors.Is(err, syscall.ECONNRESET) }
func IsErrBrokenPipe(err error) bool        { return errors.Is(err, syscall.EPIPE) }

func IsRetriableConnErr(err error) bool {
	return IsErrConnectionRefused(err) || IsErrConnectionReset(err) || IsErrBrokenPipe(err)
}

func isErrDNSLookup(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func IsUnreachable(err error) bool {
	return IsErrConnectionRefused(err) || isErrDNSLookup(err) || errors.Is(err, os.ErrDeadlineExceeded)
}

//
// Abnormal termination — used by cmd/* mains on unrecoverable startup errors.
//

const fatalPrefix = "FATAL ERROR: "

func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg)
		nlog.Flush(true)
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
