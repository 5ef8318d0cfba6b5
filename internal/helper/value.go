package helper

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

// WaitUntilValue blocks until key holds value. With a nil value it only
// waits for the key to exist.
func (h *Helper) WaitUntilValue(ctx context.Context, key string, value *string) error {
	logger := logrus.WithField("key", key)
	if value != nil {
		logger = logger.WithField("target", *value)
	}

	var waitIndex uint64
	for {
		pair, meta, err := h.store.Get(ctx, key, &coordination.QueryOptions{
			WaitIndex: waitIndex,
			WaitTime:  h.waitTime,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to read %q", key)
		}

		switch {
		case pair == nil:
			logger.Debug("key does not exist yet")

		case value == nil:
			logger.Debug("key exists")
			return nil

		case string(pair.Value) == *value:
			logger.Debug("value reached")
			return nil

		default:
			logger.WithField("value", string(pair.Value)).Debug("value does not match yet")
		}

		waitIndex, err = h.nextWaitIndex(ctx, waitIndex, meta)
		if err != nil {
			return err
		}
	}
}

// EnsureValueEquals is a single read reporting whether key holds value.
// A missing key is not equal to anything.
func (h *Helper) EnsureValueEquals(ctx context.Context, key string, value string) (bool, error) {
	pair, _, err := h.store.Get(ctx, key, nil)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read %q", key)
	}

	logger := logrus.WithField("key", key)
	if pair == nil {
		logger.Debug("key does not exist")
		return false, nil
	}

	logger.WithField("value", string(pair.Value)).Debug("read value")
	return string(pair.Value) == value, nil
}
