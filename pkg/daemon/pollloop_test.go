package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/gatewatch/pkg/core"
)

func collect(d *Daemon) (func() int, func()) {
	var mu sync.Mutex
	n := 0
	cancel := d.Subscribe(func(entries []core.RetainedEntry) {
		mu.Lock()
		n += len(entries)
		mu.Unlock()
	})
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return n
	}, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPollLoopPollsImmediatelyAndOnTick(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, lineToolStart)
	count, stop := collect(env.daemon)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewPollLoop(env.daemon, 20*time.Millisecond, testLogger()).Run(ctx)

	waitFor(t, func() bool { return count() == 1 })

	env.write(t, lineSend)
	waitFor(t, func() bool { return count() == 2 })
}

func TestPollLoopTrigger(t *testing.T) {
	env := newTestEnv(t)
	count, stop := collect(env.daemon)
	defer stop()

	trigger := make(chan struct{}, 1)
	pl := NewPollLoop(env.daemon, time.Hour, testLogger())
	pl.SetTrigger(trigger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pl.Run(ctx)

	env.write(t, lineToolStart, lineSend)
	trigger <- struct{}{}
	waitFor(t, func() bool { return count() == 2 })
}
