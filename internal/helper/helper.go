package helper

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

const (
	DefaultSessionTTL   = 10 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultWaitTime     = 5 * time.Minute
)

// Helper implements the coordination primitives on top of a Store. It keeps
// no state between calls, every call starts from what the store reports.
type Helper struct {
	store        coordination.Store
	runner       CommandRunner
	sessionTTL   time.Duration
	pollInterval time.Duration
	waitTime     time.Duration
	hostname     string
	now          func() time.Time
}

type Option func(h *Helper)

func WithSessionTTL(ttl time.Duration) Option {
	return func(h *Helper) {
		h.sessionTTL = ttl
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(h *Helper) {
		h.pollInterval = interval
	}
}

// WithWaitTime bounds a single blocking read. Lock waits are further
// capped below the session TTL.
func WithWaitTime(waitTime time.Duration) Option {
	return func(h *Helper) {
		h.waitTime = waitTime
	}
}

func WithCommandRunner(runner CommandRunner) Option {
	return func(h *Helper) {
		h.runner = runner
	}
}

func WithHostname(hostname string) Option {
	return func(h *Helper) {
		h.hostname = hostname
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Helper) {
		h.now = now
	}
}

func New(store coordination.Store, options ...Option) *Helper {
	result := &Helper{
		store:        store,
		runner:       NewShellRunner(),
		sessionTTL:   DefaultSessionTTL,
		pollInterval: DefaultPollInterval,
		waitTime:     DefaultWaitTime,
		now:          time.Now,
	}

	for _, option := range options {
		option(result)
	}

	if result.hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			logrus.WithError(err).Warn("could not determine hostname")
			hostname = "unknown"
		}
		result.hostname = hostname
	}

	return result
}

func (h *Helper) Close() error {
	return h.store.Close()
}

func (h *Helper) sessionName(operation string, key string) string {
	name := fmt.Sprintf("coordhelper[%d] %s", os.Getpid(), operation)
	if key != "" {
		name += " " + key
	}

	return name + " (" + h.now().Format(time.RFC3339) + ")"
}

// pause sleeps one poll interval unless ctx is done first.
func (h *Helper) pause(ctx context.Context) error {
	timer := time.NewTimer(h.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextWaitIndex follows the usual blocking-query rules: an index that went
// backwards restarts from scratch and a zero index means the store has
// nothing to block on yet, so the caller has to pace itself.
func (h *Helper) nextWaitIndex(ctx context.Context, previous uint64, meta *coordination.QueryMeta) (uint64, error) {
	if meta == nil || meta.LastIndex == 0 {
		return 0, h.pause(ctx)
	}
	if meta.LastIndex < previous {
		logrus.WithFields(logrus.Fields{
			"previous": previous,
			"current":  meta.LastIndex,
		}).Debug("index went backwards, resetting")
		return 0, nil
	}

	return meta.LastIndex, nil
}
