package helper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

const lockSuffix = "/.lock"

type LockedCommandRequest struct {
	Key          string
	ShellCommand string
	PassCheckID  string
}

// LockedCommand runs request.ShellCommand while holding the lock bound to
// request.Key and returns the command's exit code. The lock is released on
// every path out; if the lock is lost while the command runs, the command
// is killed and ErrLockLost is returned.
func (h *Helper) LockedCommand(ctx context.Context, request LockedCommandRequest) (code int, err error) {
	l, err := h.acquireLock(ctx, request.Key)
	if err != nil {
		return -1, err
	}

	defer func() {
		if releaseErr := l.release(); releaseErr != nil {
			if err == nil {
				l.logger.WithField("code", code).Error("command finished but the lock was not released cleanly")
				err = releaseErr
				return
			}
			logrus.WithError(releaseErr).Error("failed to release lock")
		}
	}()

	l.logger.Debug("running command")
	code, err = h.runner.Run(l.ctx, request.ShellCommand)
	if lostErr := l.lostErr(); lostErr != nil {
		return code, lostErr
	}
	if err != nil {
		return code, err
	}
	l.logger.WithField("code", code).Debug("command finished")

	if code == 0 && request.PassCheckID != "" {
		note := fmt.Sprintf("Command exited with exit code 0 on %s:\n%s",
			h.now().Format(time.RFC3339), request.ShellCommand)
		if err := h.store.PassCheck(ctx, request.PassCheckID, note); err != nil {
			return code, errors.Wrapf(err, "failed to pass check %q", request.PassCheckID)
		}
		l.logger.WithField("check", request.PassCheckID).Debug("passed check")
	}

	return code, nil
}

type heldLock struct {
	helper  *Helper
	key     string
	session string
	logger  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mutex sync.Mutex
	lost  error
}

func (h *Helper) acquireLock(ctx context.Context, key string) (*heldLock, error) {
	lockKey := key + lockSuffix
	logger := logrus.WithField("key", lockKey)

	session, err := h.store.CreateSession(ctx, coordination.SessionRequest{
		Name: h.sessionName("lockedCommand", key),
		TTL:  h.sessionTTL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create lock session")
	}
	logger = logger.WithField("session", session)
	logger.Debug("created session")

	lockCtx, cancel := context.WithCancel(ctx)
	l := &heldLock{
		helper:  h,
		key:     lockKey,
		session: session,
		logger:  logger,
		ctx:     lockCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.heartbeat()

	if err := l.wait(); err != nil {
		l.stop()
		l.destroy()
		return nil, err
	}

	logger.Debug("got lock")
	return l, nil
}

// wait blocks on the lock key until it is free and then tries to take it.
func (l *heldLock) wait() error {
	h := l.helper

	var waitIndex uint64
	for {
		l.logger.WithField("index", waitIndex).Debug("looking for existing lock")

		pair, meta, err := h.store.Get(l.ctx, l.key, &coordination.QueryOptions{
			WaitIndex: waitIndex,
			WaitTime:  h.lockWaitTime(),
		})
		if err != nil {
			if lostErr := l.lostErr(); lostErr != nil {
				return lostErr
			}
			return errors.Wrapf(err, "failed to read lock %q", l.key)
		}

		if pair != nil && pair.Flags != coordination.LockFlagValue {
			return errors.Wrapf(coordination.ErrLockConflict, "lock key %q", l.key)
		}

		if pair != nil && pair.Session != "" {
			if pair.Session == l.session {
				return nil
			}
			l.logger.WithField("holder", pair.Session).Debug("lock is already held, retrying")
		} else {
			acquired, err := h.store.Acquire(l.ctx, &coordination.KVPair{
				Key:     l.key,
				Value:   []byte(fmt.Sprintf("%s (%s)", h.hostname, h.now().Format(time.RFC3339))),
				Flags:   coordination.LockFlagValue,
				Session: l.session,
			})
			if err != nil {
				if lostErr := l.lostErr(); lostErr != nil {
					return lostErr
				}
				return errors.Wrapf(err, "failed to acquire lock %q", l.key)
			}
			if acquired {
				return nil
			}
			l.logger.Debug("lost the race for the lock, retrying")
		}

		waitIndex, err = h.nextWaitIndex(l.ctx, waitIndex, meta)
		if err != nil {
			if lostErr := l.lostErr(); lostErr != nil {
				return lostErr
			}
			return err
		}
	}
}

// heartbeat renews the session until the lock is stopped. A session the
// store no longer knows ends the lock.
func (l *heldLock) heartbeat() {
	defer close(l.done)

	ticker := time.NewTicker(l.helper.renewInterval())
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		}

		err := l.helper.store.RenewSession(l.ctx, l.session)
		switch {
		case err == nil:
			l.logger.Debug("renewed session")

		case errors.Is(err, coordination.ErrSessionNotFound):
			l.mutex.Lock()
			l.lost = errors.Wrapf(coordination.ErrLockLost, "session %s invalidated", l.session)
			l.mutex.Unlock()

			l.logger.Error("session invalidated, lock is lost")
			l.cancel()
			return

		case l.ctx.Err() != nil:
			return

		default:
			l.logger.WithError(err).Warn("failed to renew session")
		}
	}
}

func (l *heldLock) lostErr() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.lost
}

func (l *heldLock) stop() {
	l.cancel()
	<-l.done
}

// release gives the lock back and destroys the session. It runs on a fresh
// context so that it still happens after the caller's context ended.
func (l *heldLock) release() error {
	l.stop()

	ctx, cancel := context.WithTimeout(context.Background(), l.helper.sessionTTL)
	defer cancel()

	released, err := l.helper.store.Release(ctx, &coordination.KVPair{
		Key:     l.key,
		Session: l.session,
	})
	l.destroy()

	if err != nil {
		return errors.Wrapf(err, "failed to release lock %q", l.key)
	}
	if !released {
		return errors.Wrapf(coordination.ErrLockLost, "lock %q was taken away", l.key)
	}

	l.logger.Debug("released lock")
	return nil
}

func (l *heldLock) destroy() {
	ctx, cancel := context.WithTimeout(context.Background(), l.helper.sessionTTL)
	defer cancel()

	if err := l.helper.store.DestroySession(ctx, l.session); err != nil {
		l.logger.WithError(err).Warn("failed to destroy session")
		return
	}

	l.logger.Debug("destroyed session")
}

func (h *Helper) lockWaitTime() time.Duration {
	waitTime := h.sessionTTL * 8 / 10
	if h.waitTime > 0 && h.waitTime < waitTime {
		return h.waitTime
	}

	return waitTime
}

func (h *Helper) renewInterval() time.Duration {
	interval := h.sessionTTL / 3
	if interval <= 0 {
		return DefaultSessionTTL / 3
	}

	return interval
}
