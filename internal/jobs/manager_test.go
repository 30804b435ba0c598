package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingJob struct {
	name     string
	interval time.Duration
	runs     int32
	err      error
}

func (j *countingJob) Name() string            { return j.name }
func (j *countingJob) Interval() time.Duration { return j.interval }
func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	return j.err
}

func (j *countingJob) count() int32 { return atomic.LoadInt32(&j.runs) }

func TestManager_RunsImmediatelyAndOnTick(t *testing.T) {
	m := NewManager(context.Background())
	job := &countingJob{name: "tick", interval: 20 * time.Millisecond}
	m.Register(job)
	m.Register(nil)

	m.Start()
	m.Start()
	assert.Eventually(t, func() bool { return job.count() >= 3 }, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	m.Wait()
	stopped := job.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, job.count())
}

func TestManager_Trigger(t *testing.T) {
	m := NewManager(context.Background())
	job := &countingJob{name: "poll", interval: time.Hour, err: errors.New("transient")}
	m.Register(job)
	m.Start()
	defer func() {
		m.Stop()
		m.Wait()
	}()

	assert.Eventually(t, func() bool { return job.count() == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, m.Trigger("poll"))
	assert.Eventually(t, func() bool { return job.count() == 2 }, time.Second, 5*time.Millisecond)

	assert.False(t, m.Trigger("missing"))
}
