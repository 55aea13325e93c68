package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubSweeper struct {
	marked int64
	err    error
	calls  int
}

func (s *stubSweeper) SweepOverdue(ctx context.Context) (int64, error) {
	s.calls++
	return s.marked, s.err
}

type stubObserver struct {
	total int64
}

func (o *stubObserver) ObserveSLABreaches(count int64) {
	o.total += count
}

func TestRunReportsBreaches(t *testing.T) {
	sweeper := &stubSweeper{marked: 4}
	observer := &stubObserver{}
	job := NewSLASweeper(sweeper, observer, "", nil)

	job.Run()

	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, int64(4), observer.total)
}

func TestRunSkipsMetricsWhenNothingMarked(t *testing.T) {
	sweeper := &stubSweeper{marked: 0}
	observer := &stubObserver{}
	job := NewSLASweeper(sweeper, observer, "@every 1m", nil)

	job.Run()

	assert.Equal(t, int64(0), observer.total)
}

func TestRunSwallowsSweepError(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("db down")}
	observer := &stubObserver{}
	job := NewSLASweeper(sweeper, observer, "", nil)

	job.Run()

	assert.Equal(t, int64(0), observer.total)
}

func TestStartRejectsBadSpec(t *testing.T) {
	job := NewSLASweeper(&stubSweeper{}, nil, "not-a-spec", nil)

	err := job.Start()

	assert.Error(t, err)
}
