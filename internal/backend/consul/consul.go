package consul

import (
	"context"
	"net/http"
	"strings"

	capi "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

type consulStore struct {
	client *capi.Client
}

type Config struct {
	Address    string
	Datacenter string
	Token      string
}

// New connects to the agent named by config. Empty fields fall back to the
// client defaults, i.e. CONSUL_HTTP_ADDR or the local agent.
func New(config Config) (coordination.Store, error) {
	cfg := capi.DefaultConfig()
	if config.Address != "" {
		cfg.Address = config.Address
	}
	if config.Datacenter != "" {
		cfg.Datacenter = config.Datacenter
	}
	if config.Token != "" {
		cfg.Token = config.Token
	}

	client, err := capi.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create consul client")
	}

	return NewWithClient(client), nil
}

func NewWithClient(client *capi.Client) coordination.Store {
	return &consulStore{client: client}
}

func (c *consulStore) Leader(ctx context.Context) (string, error) {
	if c.client == nil {
		return "", coordination.ErrClosed
	}

	leader, err := c.client.Status().LeaderWithQueryOptions(c.queryOptions(ctx, nil))
	if err != nil {
		return "", convertError(err)
	}

	return leader, nil
}

func (c *consulStore) CreateSession(ctx context.Context, request coordination.SessionRequest) (string, error) {
	if c.client == nil {
		return "", coordination.ErrClosed
	}

	entry := &capi.SessionEntry{
		Name:     request.Name,
		Behavior: capi.SessionBehaviorRelease,
	}
	if request.TTL > 0 {
		entry.TTL = request.TTL.String()
	}

	id, _, err := c.client.Session().Create(entry, c.writeOptions(ctx))
	if err != nil {
		return "", convertError(err)
	}

	return id, nil
}

func (c *consulStore) RenewSession(ctx context.Context, id string) error {
	if c.client == nil {
		return coordination.ErrClosed
	}

	entry, _, err := c.client.Session().Renew(id, c.writeOptions(ctx))
	if err != nil {
		return convertError(err)
	}
	if entry == nil {
		return coordination.ErrSessionNotFound
	}

	return nil
}

func (c *consulStore) DestroySession(ctx context.Context, id string) error {
	if c.client == nil {
		return coordination.ErrClosed
	}

	_, err := c.client.Session().Destroy(id, c.writeOptions(ctx))
	return convertError(err)
}

func (c *consulStore) Get(ctx context.Context, key string,
	options *coordination.QueryOptions) (*coordination.KVPair, *coordination.QueryMeta, error) {

	if c.client == nil {
		return nil, nil, coordination.ErrClosed
	}

	pair, meta, err := c.client.KV().Get(key, c.queryOptions(ctx, options))
	if err != nil {
		return nil, nil, convertError(err)
	}

	return convertPair(pair), convertMeta(meta), nil
}

func (c *consulStore) CompareAndSet(ctx context.Context, pair *coordination.KVPair) (bool, error) {
	if c.client == nil {
		return false, coordination.ErrClosed
	}

	ok, _, err := c.client.KV().CAS(&capi.KVPair{
		Key:         pair.Key,
		Value:       pair.Value,
		Flags:       pair.Flags,
		ModifyIndex: pair.ModifyIndex,
	}, c.writeOptions(ctx))
	if err != nil {
		return false, convertError(err)
	}

	return ok, nil
}

func (c *consulStore) Acquire(ctx context.Context, pair *coordination.KVPair) (bool, error) {
	if c.client == nil {
		return false, coordination.ErrClosed
	}

	ok, _, err := c.client.KV().Acquire(&capi.KVPair{
		Key:     pair.Key,
		Value:   pair.Value,
		Flags:   pair.Flags,
		Session: pair.Session,
	}, c.writeOptions(ctx))
	if err != nil {
		return false, convertError(err)
	}

	return ok, nil
}

func (c *consulStore) Release(ctx context.Context, pair *coordination.KVPair) (bool, error) {
	if c.client == nil {
		return false, coordination.ErrClosed
	}

	ok, _, err := c.client.KV().Release(&capi.KVPair{
		Key:     pair.Key,
		Value:   pair.Value,
		Flags:   pair.Flags,
		Session: pair.Session,
	}, c.writeOptions(ctx))
	if err != nil {
		return false, convertError(err)
	}

	return ok, nil
}

func (c *consulStore) PassCheck(ctx context.Context, checkID string, note string) error {
	if c.client == nil {
		return coordination.ErrClosed
	}

	err := c.client.Agent().UpdateTTLOpts(checkID, note, capi.HealthPassing, c.queryOptions(ctx, nil))
	if err != nil {
		var statusErr capi.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return errors.Wrap(coordination.ErrCheckNotFound, checkID)
		}
		return convertError(err)
	}

	return nil
}

func (c *consulStore) RegisterService(ctx context.Context, registration coordination.ServiceRegistration) error {
	if c.client == nil {
		return coordination.ErrClosed
	}

	if registration.Node != "" {
		logrus.WithField("node", registration.Node).
			Debug("consul registers services on the local agent's node; ignoring node")
	}

	id := registration.ID
	if id == "" {
		id = registration.Name
	}

	err := c.client.Agent().ServiceRegisterOpts(&capi.AgentServiceRegistration{
		ID:   id,
		Name: registration.Name,
		Check: &capi.AgentServiceCheck{
			CheckID: registration.CheckID,
			TTL:     registration.TTL.String(),
			Status:  capi.HealthCritical,
		},
	}, capi.ServiceRegisterOpts{}.WithContext(ctx))

	return convertError(err)
}

func (c *consulStore) HealthyService(ctx context.Context, service string,
	options *coordination.QueryOptions) ([]coordination.ServiceEntry, *coordination.QueryMeta, error) {

	if c.client == nil {
		return nil, nil, coordination.ErrClosed
	}

	entries, meta, err := c.client.Health().Service(service, "", true, c.queryOptions(ctx, options))
	if err != nil {
		return nil, nil, convertError(err)
	}

	result := make([]coordination.ServiceEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, convertServiceEntry(entry))
	}

	return result, convertMeta(meta), nil
}

func (c *consulStore) Close() error {
	c.client = nil
	return nil
}

func (c *consulStore) queryOptions(ctx context.Context, options *coordination.QueryOptions) *capi.QueryOptions {
	q := &capi.QueryOptions{RequireConsistent: true}
	if options != nil {
		q.WaitIndex = options.WaitIndex
		q.WaitTime = options.WaitTime
	}

	return q.WithContext(ctx)
}

func (c *consulStore) writeOptions(ctx context.Context) *capi.WriteOptions {
	return (&capi.WriteOptions{}).WithContext(ctx)
}

func convertPair(pair *capi.KVPair) *coordination.KVPair {
	if pair == nil {
		return nil
	}

	return &coordination.KVPair{
		Key:         pair.Key,
		Value:       pair.Value,
		Flags:       pair.Flags,
		ModifyIndex: pair.ModifyIndex,
		Session:     pair.Session,
	}
}

func convertMeta(meta *capi.QueryMeta) *coordination.QueryMeta {
	if meta == nil {
		return &coordination.QueryMeta{}
	}

	return &coordination.QueryMeta{LastIndex: meta.LastIndex}
}

func convertServiceEntry(entry *capi.ServiceEntry) coordination.ServiceEntry {
	var result coordination.ServiceEntry

	if entry.Node != nil {
		result.Node = entry.Node.Node
	}
	if entry.Service != nil {
		result.ServiceID = entry.Service.ID
		result.Service = entry.Service.Service
	}

	for _, check := range entry.Checks {
		if check == nil {
			continue
		}
		result.Checks = append(result.Checks, coordination.HealthCheck{
			CheckID:     check.CheckID,
			Node:        check.Node,
			ServiceID:   check.ServiceID,
			Status:      check.Status,
			Output:      check.Output,
			ModifyIndex: check.ModifyIndex,
		})
	}

	return result
}

// convertError marks server side failures (no leader, 5xx) as
// coordination.ErrUnavailable. Transport errors are returned as they are.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr capi.StatusError
	if errors.As(err, &statusErr) && statusErr.Code >= http.StatusInternalServerError {
		return errors.Wrap(coordination.ErrUnavailable, strings.TrimSpace(statusErr.Body))
	}

	if strings.Contains(err.Error(), "No cluster leader") {
		return errors.Wrap(coordination.ErrUnavailable, err.Error())
	}

	return err
}
