package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// signalRecorder cancels the invocation on SIGINT or SIGTERM and remembers
// which signal did it, so that the exit code can report it.
type signalRecorder struct {
	mutex  sync.Mutex
	signal os.Signal

	sigs chan os.Signal
	done chan struct{}
	once sync.Once
}

func withSignals(parent context.Context) (context.Context, *signalRecorder) {
	ctx, cancel := context.WithCancel(parent)

	recorder := &signalRecorder{
		sigs: make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(recorder.sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer cancel()

		select {
		case sig := <-recorder.sigs:
			log.WithField("signal", sig).Warn("received signal, cleaning up")

			recorder.mutex.Lock()
			recorder.signal = sig
			recorder.mutex.Unlock()

		case <-recorder.done:
		}
	}()

	return ctx, recorder
}

func (r *signalRecorder) received() os.Signal {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.signal
}

func (r *signalRecorder) stop() {
	r.once.Do(func() {
		signal.Stop(r.sigs)
		close(r.done)
	})
}
