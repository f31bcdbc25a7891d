package sched

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEveryRunsPeriodically(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var ticks atomic.Int64
	s.Every("tick", 10*time.Millisecond, func() error {
		ticks.Add(1)
		return nil
	})

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestEveryReplacesSameNameTask(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var old, replacement atomic.Int64
	s.Every("tick", 10*time.Millisecond, func() error {
		old.Add(1)
		return nil
	})
	s.Every("tick", 10*time.Millisecond, func() error {
		replacement.Add(1)
		return nil
	})

	assert.Eventually(t, func() bool { return replacement.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, old.Load())
}

func TestStopHaltsSingleTask(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var stopped, running atomic.Int64
	s.Every("stopped", 10*time.Millisecond, func() error {
		stopped.Add(1)
		return nil
	})
	s.Every("running", 10*time.Millisecond, func() error {
		running.Add(1)
		return nil
	})

	s.Stop("stopped")
	s.Stop("ghost") // 停止未知任务应安全

	frozen := stopped.Load()
	assert.Eventually(t, func() bool { return running.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, frozen, stopped.Load())
}

func TestTaskErrorDoesNotStopLoop(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var ticks atomic.Int64
	s.Every("flaky", 10*time.Millisecond, func() error {
		ticks.Add(1)
		return errors.New("transient failure")
	})

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestStopAllWaitsAndRejectsNewTasks(t *testing.T) {
	s := New(nil)

	var ticks atomic.Int64
	s.Every("tick", 10*time.Millisecond, func() error {
		ticks.Add(1)
		return nil
	})

	s.StopAll()
	frozen := ticks.Load()

	s.Every("late", time.Millisecond, func() error {
		t.Error("task scheduled after StopAll ran")
		return nil
	})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, ticks.Load())

	// 重复StopAll应安全
	s.StopAll()
}

func TestNonPositiveIntervalIsIgnored(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	s.Every("noop", 0, func() error {
		t.Error("task with zero interval must not run")
		return nil
	})
	time.Sleep(20 * time.Millisecond)
}
