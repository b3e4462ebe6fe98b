// Package testerr helps simulate failing dependencies in tests.
package testerr

import (
	"errors"
	"sync"
)

// Err is the error returned by failing dependencies.
var Err = errors.New("test error")

// FailingDep tracks calls to a dependency and decides which of them fail.
// The zero value never fails. FailingDep is safe for concurrent use.
type FailingDep struct {
	mu                sync.Mutex
	shouldFail        bool
	callIndex         int
	err               error
	failAllAfterIndex bool
	failAtIndex       int
}

// NewFailingDeps will create failing dependencies that fail at different
// points in a sequence of expectCalls calls.
//
// Dependencies will fail in two ways:
// - A single failure, then all calls after succesful.
// - All calls will fail after a number of succesful calls.
func NewFailingDeps(err error, expectCalls int) []*FailingDep {
	deps := make([]*FailingDep, 0, expectCalls*2)
	for i := 0; i < expectCalls; i++ {
		deps = append(deps, &FailingDep{
			shouldFail:        true,
			callIndex:         -1,
			err:               err,
			failAllAfterIndex: true,
			failAtIndex:       i,
		}, &FailingDep{
			shouldFail:        true,
			callIndex:         -1,
			err:               err,
			failAllAfterIndex: false,
			failAtIndex:       i,
		})
	}

	return deps
}

func (d *FailingDep) next() error {
	if d == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.shouldFail {
		return nil
	}

	d.callIndex++

	if d.failAtIndex == d.callIndex {
		return d.err
	}

	if d.failAllAfterIndex && d.callIndex > d.failAtIndex {
		return d.err
	}

	return nil
}

// MaybeFailErrFunc fails the call or calls f.
func MaybeFailErrFunc(dep *FailingDep, f func() error) error {
	if err := dep.next(); err != nil {
		return err
	}

	return f()
}

// MaybeFail fails the call or calls f.
func MaybeFail[T any](dep *FailingDep, f func() (T, error)) (T, error) {
	if err := dep.next(); err != nil {
		var zero T
		return zero, err
	}

	return f()
}
