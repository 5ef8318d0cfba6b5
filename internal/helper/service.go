package helper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

type ServiceQuery struct {
	Service string
	// Node limits the result to instances on that node when set.
	Node string
	// WaitForIndexChange ignores instances that were already healthy on
	// the first read until one of their checks changes again.
	WaitForIndexChange bool
}

// WaitUntilService blocks until the service has at least one healthy
// instance matching query and returns those instances.
func (h *Helper) WaitUntilService(ctx context.Context, query ServiceQuery) ([]coordination.ServiceEntry, error) {
	logger := logrus.WithField("service", query.Service)
	if query.Node != "" {
		logger = logger.WithField("node", query.Node)
	}

	var waitIndex uint64
	var baseline uint64
	first := true

	for {
		entries, meta, err := h.store.HealthyService(ctx, query.Service, &coordination.QueryOptions{
			WaitIndex: waitIndex,
			WaitTime:  h.waitTime,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to query service %q", query.Service)
		}

		entries = filterNode(entries, query.Node)
		latest := maxCheckIndex(entries)
		logger.WithFields(logrus.Fields{
			"healthy":    len(entries),
			"checkIndex": latest,
		}).Debug("queried service")

		switch {
		case query.WaitForIndexChange && first:
			baseline = latest
			logger.WithField("baseline", baseline).Debug("waiting for next index update")

		case query.WaitForIndexChange && latest <= baseline:
			logger.Debug("waiting for next index update")

		case len(entries) > 0:
			logger.Debug("service is passing")
			return entries, nil
		}
		first = false

		waitIndex, err = h.nextWaitIndex(ctx, waitIndex, meta)
		if err != nil {
			return nil, err
		}
	}
}

// RegisterService registers a service instance guarded by a TTL check that
// starts out critical until it is passed.
func (h *Helper) RegisterService(ctx context.Context, registration coordination.ServiceRegistration) error {
	if registration.Name == "" {
		return errors.New("service name is required")
	}
	if registration.CheckID == "" {
		return errors.New("check id is required")
	}
	if registration.TTL <= 0 {
		return errors.New("check ttl must be positive")
	}

	logrus.WithFields(logrus.Fields{
		"service": registration.Name,
		"check":   registration.CheckID,
		"ttl":     registration.TTL.Round(time.Millisecond),
	}).Debug("registering service")

	return errors.Wrapf(h.store.RegisterService(ctx, registration),
		"failed to register service %q", registration.Name)
}

func filterNode(entries []coordination.ServiceEntry, node string) []coordination.ServiceEntry {
	if node == "" {
		return entries
	}

	var result []coordination.ServiceEntry
	for _, entry := range entries {
		if entry.Node == node {
			result = append(result, entry)
		}
	}

	return result
}

func maxCheckIndex(entries []coordination.ServiceEntry) uint64 {
	var result uint64
	for _, entry := range entries {
		for _, check := range entry.Checks {
			if check.ModifyIndex > result {
				result = check.ModifyIndex
			}
		}
	}

	return result
}
