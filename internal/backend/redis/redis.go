package redis

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

const (
	DefaultPrefix       = "coordination/"
	DefaultPollInterval = 100 * time.Millisecond
	defaultWaitTime     = 5 * time.Minute
)

// Every KV key is stored as a hash holding value, flags, index and session.
// Indices come from a single INCR counter so they are comparable across keys
// the same way consul's raft index is.
const (
	casScript = `
local current = redis.call('HGET', KEYS[1], 'index')
local expected = tonumber(ARGV[1])
if expected == 0 then
  if current then return 0 end
elseif (not current) or tonumber(current) ~= expected then
  return 0
end
local index = redis.call('INCR', KEYS[2])
redis.call('HMSET', KEYS[1], 'value', ARGV[2], 'flags', ARGV[3], 'index', index)
return index
`

	acquireScript = `
if redis.call('EXISTS', ARGV[4] .. ARGV[3]) == 0 then return -1 end
local holder = redis.call('HGET', KEYS[1], 'session')
if holder and holder ~= '' and holder ~= ARGV[3] then
  if redis.call('EXISTS', ARGV[4] .. holder) == 1 then return 0 end
end
local index = redis.call('INCR', KEYS[2])
redis.call('HMSET', KEYS[1], 'value', ARGV[1], 'flags', ARGV[2], 'session', ARGV[3], 'index', index)
return index
`

	releaseScript = `
if redis.call('HGET', KEYS[1], 'session') ~= ARGV[1] then return 0 end
local index = redis.call('INCR', KEYS[2])
redis.call('HMSET', KEYS[1], 'session', '', 'index', index)
return index
`

	passScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local index = redis.call('INCR', KEYS[2])
redis.call('HMSET', KEYS[1], 'status', 'passing', 'output', ARGV[1], 'index', index)
local ttl = redis.call('HGET', KEYS[1], 'ttl')
if ttl and tonumber(ttl) > 0 then
  redis.call('SET', KEYS[3], '1', 'PX', ttl)
else
  redis.call('SET', KEYS[3], '1')
end
return index
`

	registerScript = `
local index = redis.call('INCR', KEYS[2])
redis.call('DEL', KEYS[1], KEYS[3])
redis.call('HMSET', KEYS[1], 'service', ARGV[1], 'service_id', ARGV[2], 'node', ARGV[3], 'ttl', ARGV[4], 'status', 'critical', 'output', '', 'index', index)
redis.call('SADD', KEYS[4], ARGV[5])
return index
`
)

type redisStore struct {
	client       *redis.Client
	address      string
	prefix       string
	node         string
	pollInterval time.Duration
}

type Option func(r *redisStore)

func WithPrefix(prefix string) Option {
	return func(r *redisStore) {
		r.prefix = prefix
	}
}

func WithNode(node string) Option {
	return func(r *redisStore) {
		r.node = node
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(r *redisStore) {
		r.pollInterval = interval
	}
}

func New(client *redis.Client, address string, options ...Option) coordination.Store {
	result := &redisStore{
		client:       client,
		address:      address,
		prefix:       DefaultPrefix,
		pollInterval: DefaultPollInterval,
	}

	for _, option := range options {
		option(result)
	}

	return result
}

// Leader reports the server address: a single redis server is its own
// authority, so any answer to PING means there is someone to coordinate on.
func (r *redisStore) Leader(ctx context.Context) (string, error) {
	if r.client == nil {
		return "", coordination.ErrClosed
	}

	if err := r.client.WithContext(ctx).Ping().Err(); err != nil {
		return "", err
	}

	return r.address, nil
}

func (r *redisStore) CreateSession(ctx context.Context, request coordination.SessionRequest) (string, error) {
	if r.client == nil {
		return "", coordination.ErrClosed
	}

	id := uuid.New()
	if err := r.client.WithContext(ctx).Set(r.sessionKey(id), request.Name, request.TTL).Err(); err != nil {
		return "", err
	}

	if request.TTL > 0 {
		err := r.client.WithContext(ctx).Set(r.sessionTTLKey(id), int64(request.TTL/time.Millisecond), request.TTL).Err()
		if err != nil {
			return "", err
		}
	}

	return id, nil
}

func (r *redisStore) RenewSession(ctx context.Context, id string) error {
	if r.client == nil {
		return coordination.ErrClosed
	}

	client := r.client.WithContext(ctx)

	exists, err := client.Exists(r.sessionKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return coordination.ErrSessionNotFound
	}

	ttlMillis, err := client.Get(r.sessionTTLKey(id)).Int64()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	ttl := time.Duration(ttlMillis) * time.Millisecond
	renewed, err := client.PExpire(r.sessionKey(id), ttl).Result()
	if err != nil {
		return err
	}
	if !renewed {
		return coordination.ErrSessionNotFound
	}

	return client.PExpire(r.sessionTTLKey(id), ttl).Err()
}

func (r *redisStore) DestroySession(ctx context.Context, id string) error {
	if r.client == nil {
		return coordination.ErrClosed
	}

	return r.client.WithContext(ctx).Del(r.sessionKey(id), r.sessionTTLKey(id)).Err()
}

func (r *redisStore) Get(ctx context.Context, key string,
	options *coordination.QueryOptions) (*coordination.KVPair, *coordination.QueryMeta, error) {

	if r.client == nil {
		return nil, nil, coordination.ErrClosed
	}

	var result *coordination.KVPair

	index, err := r.poll(ctx, options, func() (uint64, string, error) {
		pair, index, err := r.readPair(ctx, key)
		if err != nil {
			return 0, "", err
		}

		result = pair
		if pair == nil {
			return index, "", nil
		}
		return index, pair.Session, nil
	})
	if err != nil {
		return nil, nil, err
	}

	return result, &coordination.QueryMeta{LastIndex: index}, nil
}

func (r *redisStore) CompareAndSet(ctx context.Context, pair *coordination.KVPair) (bool, error) {
	if r.client == nil {
		return false, coordination.ErrClosed
	}

	return r.runIndexScript(ctx, casScript,
		[]string{r.kvKey(pair.Key), r.indexKey()},
		pair.ModifyIndex, pair.Value, pair.Flags)
}

func (r *redisStore) Acquire(ctx context.Context, pair *coordination.KVPair) (bool, error) {
	if r.client == nil {
		return false, coordination.ErrClosed
	}

	result, err := r.client.WithContext(ctx).Eval(acquireScript,
		[]string{r.kvKey(pair.Key), r.indexKey()},
		pair.Value, pair.Flags, pair.Session, r.prefix+"session/").Result()
	if err != nil {
		return false, err
	}

	switch toInt64(result) {
	case -1:
		return false, errors.Wrapf(coordination.ErrSessionNotFound, "invalid session %q", pair.Session)
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

func (r *redisStore) Release(ctx context.Context, pair *coordination.KVPair) (bool, error) {
	if r.client == nil {
		return false, coordination.ErrClosed
	}

	return r.runIndexScript(ctx, releaseScript,
		[]string{r.kvKey(pair.Key), r.indexKey()},
		pair.Session)
}

func (r *redisStore) PassCheck(ctx context.Context, checkID string, note string) error {
	if r.client == nil {
		return coordination.ErrClosed
	}

	result, err := r.client.WithContext(ctx).Eval(passScript,
		[]string{r.checkKey(checkID), r.indexKey(), r.checkTTLKey(checkID)},
		note).Result()
	if err != nil {
		return err
	}
	if toInt64(result) < 0 {
		return errors.Wrap(coordination.ErrCheckNotFound, checkID)
	}

	return nil
}

func (r *redisStore) RegisterService(ctx context.Context, registration coordination.ServiceRegistration) error {
	if r.client == nil {
		return coordination.ErrClosed
	}

	serviceID := registration.ID
	if serviceID == "" {
		serviceID = registration.Name
	}
	node := registration.Node
	if node == "" {
		node = r.node
	}

	return r.client.WithContext(ctx).Eval(registerScript,
		[]string{
			r.checkKey(registration.CheckID),
			r.indexKey(),
			r.checkTTLKey(registration.CheckID),
			r.serviceKey(registration.Name),
		},
		registration.Name, serviceID, node,
		int64(registration.TTL/time.Millisecond), registration.CheckID).Err()
}

func (r *redisStore) HealthyService(ctx context.Context, service string,
	options *coordination.QueryOptions) ([]coordination.ServiceEntry, *coordination.QueryMeta, error) {

	if r.client == nil {
		return nil, nil, coordination.ErrClosed
	}

	var result []coordination.ServiceEntry

	index, err := r.poll(ctx, options, func() (uint64, string, error) {
		entries, index, err := r.readService(ctx, service)
		if err != nil {
			return 0, "", err
		}

		result = nil
		var signature []string
		for _, entry := range entries {
			if passing(entry.Checks) {
				result = append(result, entry)
				signature = append(signature, entry.Node+"/"+entry.ServiceID)
			}
		}

		return index, strings.Join(signature, ","), nil
	})
	if err != nil {
		return nil, nil, err
	}

	return result, &coordination.QueryMeta{LastIndex: index}, nil
}

func (r *redisStore) Close() error {
	if r.client != nil {
		err := r.client.Close()
		r.client = nil

		return err
	}

	return nil
}

// poll emulates a blocking query. Expiring keys (sessions, TTL checks) do not
// move the index in redis, so besides the index a change of the state
// signature also ends the wait.
func (r *redisStore) poll(ctx context.Context, options *coordination.QueryOptions,
	read func() (uint64, string, error)) (uint64, error) {

	index, signature, err := read()
	if err != nil || options == nil || options.WaitIndex == 0 || index > options.WaitIndex {
		return index, err
	}

	waitTime := options.WaitTime
	if waitTime <= 0 {
		waitTime = defaultWaitTime
	}
	deadline := time.NewTimer(waitTime)
	defer deadline.Stop()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-deadline.C:
			return index, nil
		case <-ticker.C:
		}

		current, currentSignature, err := read()
		if err != nil {
			return 0, err
		}
		if current > options.WaitIndex || currentSignature != signature {
			return current, nil
		}
	}
}

func (r *redisStore) readPair(ctx context.Context, key string) (*coordination.KVPair, uint64, error) {
	client := r.client.WithContext(ctx)

	fields, err := client.HGetAll(r.kvKey(key)).Result()
	if err != nil {
		return nil, 0, err
	}

	if len(fields) == 0 {
		index, err := r.currentIndex(ctx)
		return nil, index, err
	}

	pair := &coordination.KVPair{
		Key:         key,
		Value:       []byte(fields["value"]),
		Flags:       parseUint(fields["flags"]),
		ModifyIndex: parseUint(fields["index"]),
		Session:     fields["session"],
	}

	if pair.Session != "" {
		alive, err := client.Exists(r.sessionKey(pair.Session)).Result()
		if err != nil {
			return nil, 0, err
		}
		if alive == 0 {
			pair.Session = ""
		}
	}

	return pair, pair.ModifyIndex, nil
}

func (r *redisStore) readService(ctx context.Context, service string) ([]coordination.ServiceEntry, uint64, error) {
	client := r.client.WithContext(ctx)

	checkIDs, err := client.SMembers(r.serviceKey(service)).Result()
	if err != nil {
		return nil, 0, err
	}
	sort.Strings(checkIDs)

	var index uint64
	var order []string
	byInstance := make(map[string]*coordination.ServiceEntry)

	for _, checkID := range checkIDs {
		fields, err := client.HGetAll(r.checkKey(checkID)).Result()
		if err != nil {
			return nil, 0, err
		}
		if len(fields) == 0 || fields["service"] != service {
			continue
		}

		status := fields["status"]
		if status == coordination.HealthPassing {
			alive, err := client.Exists(r.checkTTLKey(checkID)).Result()
			if err != nil {
				return nil, 0, err
			}
			if alive == 0 {
				status = coordination.HealthCritical
			}
		}

		check := coordination.HealthCheck{
			CheckID:     checkID,
			Node:        fields["node"],
			ServiceID:   fields["service_id"],
			Status:      status,
			Output:      fields["output"],
			ModifyIndex: parseUint(fields["index"]),
		}
		if check.ModifyIndex > index {
			index = check.ModifyIndex
		}

		instance := check.Node + "/" + check.ServiceID
		entry, ok := byInstance[instance]
		if !ok {
			entry = &coordination.ServiceEntry{
				Node:      check.Node,
				ServiceID: check.ServiceID,
				Service:   service,
			}
			byInstance[instance] = entry
			order = append(order, instance)
		}
		entry.Checks = append(entry.Checks, check)
	}

	var result []coordination.ServiceEntry
	for _, instance := range order {
		result = append(result, *byInstance[instance])
	}

	if index == 0 {
		current, err := r.currentIndex(ctx)
		return result, current, err
	}

	return result, index, nil
}

func (r *redisStore) runIndexScript(ctx context.Context, script string, keys []string, args ...interface{}) (bool, error) {
	result, err := r.client.WithContext(ctx).Eval(script, keys, args...).Result()
	if err != nil {
		return false, err
	}

	return toInt64(result) > 0, nil
}

func (r *redisStore) currentIndex(ctx context.Context) (uint64, error) {
	index, err := r.client.WithContext(ctx).Get(r.indexKey()).Uint64()
	if err == redis.Nil {
		return 0, nil
	}

	return index, err
}

func (r *redisStore) indexKey() string {
	return r.prefix + "index"
}

func (r *redisStore) kvKey(key string) string {
	return r.prefix + "kv/" + key
}

func (r *redisStore) sessionKey(id string) string {
	return r.prefix + "session/" + id
}

func (r *redisStore) sessionTTLKey(id string) string {
	return r.prefix + "session-ttl/" + id
}

func (r *redisStore) checkKey(checkID string) string {
	return r.prefix + "check/" + checkID
}

func (r *redisStore) checkTTLKey(checkID string) string {
	return r.prefix + "check-ttl/" + checkID
}

func (r *redisStore) serviceKey(service string) string {
	return r.prefix + "service/" + service
}

func passing(checks []coordination.HealthCheck) bool {
	for _, check := range checks {
		if check.Status != coordination.HealthPassing {
			return false
		}
	}

	return len(checks) > 0
}

func parseUint(value string) uint64 {
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}

	return result
}

func toInt64(value interface{}) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case string:
		result, _ := strconv.ParseInt(v, 10, 64)
		return result
	default:
		return 0
	}
}
