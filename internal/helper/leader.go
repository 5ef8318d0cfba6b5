package helper

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

// WaitForLeader polls until the store reports an elected leader.
func (h *Helper) WaitForLeader(ctx context.Context) (string, error) {
	for {
		leader, err := h.store.Leader(ctx)
		switch {
		case err == nil && leader != "":
			logrus.WithField("leader", leader).Debug("got leader")
			return leader, nil

		case err == nil:
			logrus.Debug("got empty leader, retrying")

		case errors.Is(err, coordination.ErrUnavailable):
			logrus.WithError(err).Debug("store is not ready, retrying")

		default:
			return "", errors.Wrap(err, "failed to query leader")
		}

		if err := h.pause(ctx); err != nil {
			return "", err
		}
	}
}

// WaitForSession polls until the store accepts a session, which needs more
// of the cluster to be up than a leader alone. The probe session is
// destroyed again before returning.
func (h *Helper) WaitForSession(ctx context.Context) error {
	for {
		logrus.Debug("trying to create session")

		id, err := h.store.CreateSession(ctx, coordination.SessionRequest{
			Name: h.sessionName("waitForSession", ""),
			TTL:  h.sessionTTL,
		})
		if err == nil {
			logrus.WithField("session", id).Debug("got session")
			return errors.Wrap(h.store.DestroySession(ctx, id), "failed to destroy probe session")
		}

		if !errors.Is(err, coordination.ErrUnavailable) {
			return errors.Wrap(err, "failed to create session")
		}
		logrus.WithError(err).Debug("store is not ready, retrying")

		if err := h.pause(ctx); err != nil {
			return err
		}
	}
}
