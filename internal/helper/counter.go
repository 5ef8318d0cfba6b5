package helper

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

// CounterIncrement adds one to the decimal counter stored at key with a
// read-modify-CAS cycle, retrying lost races until the write lands. A
// missing key counts as 0. It returns the value it wrote.
func (h *Helper) CounterIncrement(ctx context.Context, key string) (int64, error) {
	logger := logrus.WithField("key", key)

	for attempt := 1; ; attempt++ {
		pair, _, err := h.store.Get(ctx, key, nil)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to read counter %q", key)
		}

		var current int64
		var index uint64
		var flags uint64
		if pair != nil {
			current, err = parseCounter(pair.Value)
			if err != nil {
				return 0, errors.Wrapf(err, "key %q", key)
			}
			index = pair.ModifyIndex
			flags = pair.Flags
		}

		next := current + 1
		logger.WithFields(logrus.Fields{
			"value":   next,
			"cas":     index,
			"attempt": attempt,
		}).Debug("trying to put counter value")

		ok, err := h.store.CompareAndSet(ctx, &coordination.KVPair{
			Key:         key,
			Value:       []byte(strconv.FormatInt(next, 10)),
			Flags:       flags,
			ModifyIndex: index,
		})
		if err != nil {
			return 0, errors.Wrapf(err, "failed to write counter %q", key)
		}
		if ok {
			logger.WithField("value", next).Debug("counter CAS succeeded")
			return next, nil
		}

		logger.Debug("counter CAS failed, retrying")
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
}

func parseCounter(value []byte) (int64, error) {
	trimmed := strings.TrimSpace(string(value))
	if trimmed == "" {
		return 0, nil
	}

	result, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, coordination.ErrNotInteger
	}

	return result, nil
}
