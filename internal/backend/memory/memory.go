package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

const (
	DefaultLeader = "127.0.0.1:8300"
	DefaultNode   = "memory"
)

// Store keeps the whole keyspace in process. It follows the consul semantics
// the helper depends on: a single raft-like index bumped by every write,
// blocking reads woken by index changes, sessions that release their locks
// when their TTL lapses and TTL checks that turn critical when not passed.
type Store struct {
	mutex    sync.Mutex
	index    uint64
	changed  chan struct{}
	closed   bool
	leader   string
	node     string
	pairs    map[string]*coordination.KVPair
	sessions map[string]*session
	checks   map[string]*check
}

type session struct {
	id       string
	name     string
	ttl      time.Duration
	deadline time.Time
	timer    *time.Timer
}

type check struct {
	coordination.HealthCheck
	service  string
	ttl      time.Duration
	deadline time.Time
	timer    *time.Timer
}

type Option func(s *Store)

func WithLeader(leader string) Option {
	return func(s *Store) {
		s.leader = leader
	}
}

func WithNode(node string) Option {
	return func(s *Store) {
		s.node = node
	}
}

func New(options ...Option) *Store {
	// consul never reports index 0, a fresh store starts at 1 as well
	result := &Store{
		index:    1,
		changed:  make(chan struct{}),
		leader:   DefaultLeader,
		node:     DefaultNode,
		pairs:    make(map[string]*coordination.KVPair),
		sessions: make(map[string]*session),
		checks:   make(map[string]*check),
	}

	for _, option := range options {
		option(result)
	}

	return result
}

func (s *Store) SetLeader(leader string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.leader = leader
}

// CheckStatus reports the current status of a registered check.
func (s *Store) CheckStatus(checkID string) (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.checks[checkID]
	if !ok {
		return "", false
	}

	return c.Status, true
}

func (s *Store) Leader(ctx context.Context) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return "", coordination.ErrClosed
	}

	return s.leader, nil
}

func (s *Store) CreateSession(ctx context.Context, request coordination.SessionRequest) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return "", coordination.ErrClosed
	}
	if s.leader == "" {
		return "", errors.Wrap(coordination.ErrUnavailable, "No cluster leader")
	}

	sess := &session{
		id:   uuid.New(),
		name: request.Name,
		ttl:  request.TTL,
	}
	if sess.ttl > 0 {
		sess.deadline = time.Now().Add(sess.ttl)
		sess.timer = time.AfterFunc(sess.ttl, func() { s.expireSession(sess.id) })
	}
	s.sessions[sess.id] = sess

	return sess.id, nil
}

func (s *Store) RenewSession(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return coordination.ErrClosed
	}

	sess, ok := s.sessions[id]
	if !ok {
		return coordination.ErrSessionNotFound
	}
	if sess.ttl > 0 {
		sess.deadline = time.Now().Add(sess.ttl)
		sess.timer.Reset(sess.ttl)
	}

	return nil
}

func (s *Store) DestroySession(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return coordination.ErrClosed
	}

	s.invalidateSession(id)
	return nil
}

func (s *Store) Get(ctx context.Context, key string,
	options *coordination.QueryOptions) (*coordination.KVPair, *coordination.QueryMeta, error) {

	var result *coordination.KVPair

	index, err := s.block(ctx, options, func() uint64 {
		pair, ok := s.pairs[key]
		if !ok {
			result = nil
			return s.index
		}

		copied := *pair
		copied.Value = append([]byte(nil), pair.Value...)
		result = &copied
		return pair.ModifyIndex
	})
	if err != nil {
		return nil, nil, err
	}

	return result, &coordination.QueryMeta{LastIndex: index}, nil
}

func (s *Store) CompareAndSet(ctx context.Context, pair *coordination.KVPair) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return false, coordination.ErrClosed
	}

	existing, ok := s.pairs[pair.Key]
	if pair.ModifyIndex == 0 {
		if ok {
			return false, nil
		}
	} else if !ok || existing.ModifyIndex != pair.ModifyIndex {
		return false, nil
	}

	var holder string
	if ok {
		holder = existing.Session
	}

	s.put(pair, holder)
	return true, nil
}

func (s *Store) Acquire(ctx context.Context, pair *coordination.KVPair) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return false, coordination.ErrClosed
	}
	if _, ok := s.sessions[pair.Session]; !ok {
		return false, errors.Wrapf(coordination.ErrSessionNotFound, "invalid session %q", pair.Session)
	}

	if existing, ok := s.pairs[pair.Key]; ok && existing.Session != "" && existing.Session != pair.Session {
		return false, nil
	}

	s.put(pair, pair.Session)
	return true, nil
}

func (s *Store) Release(ctx context.Context, pair *coordination.KVPair) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return false, coordination.ErrClosed
	}

	existing, ok := s.pairs[pair.Key]
	if !ok || existing.Session == "" || existing.Session != pair.Session {
		return false, nil
	}

	s.bump()
	existing.Session = ""
	existing.ModifyIndex = s.index
	return true, nil
}

func (s *Store) PassCheck(ctx context.Context, checkID string, note string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return coordination.ErrClosed
	}

	c, ok := s.checks[checkID]
	if !ok {
		return errors.Wrap(coordination.ErrCheckNotFound, checkID)
	}

	s.bump()
	c.Status = coordination.HealthPassing
	c.Output = note
	c.ModifyIndex = s.index

	if c.ttl > 0 {
		c.deadline = time.Now().Add(c.ttl)
		if c.timer == nil {
			c.timer = time.AfterFunc(c.ttl, func() { s.expireCheck(checkID) })
		} else {
			c.timer.Reset(c.ttl)
		}
	}

	return nil
}

func (s *Store) RegisterService(ctx context.Context, registration coordination.ServiceRegistration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return coordination.ErrClosed
	}

	serviceID := registration.ID
	if serviceID == "" {
		serviceID = registration.Name
	}
	node := registration.Node
	if node == "" {
		node = s.node
	}

	if existing, ok := s.checks[registration.CheckID]; ok && existing.timer != nil {
		existing.timer.Stop()
	}

	s.bump()
	s.checks[registration.CheckID] = &check{
		HealthCheck: coordination.HealthCheck{
			CheckID:     registration.CheckID,
			Node:        node,
			ServiceID:   serviceID,
			Status:      coordination.HealthCritical,
			ModifyIndex: s.index,
		},
		service: registration.Name,
		ttl:     registration.TTL,
	}

	return nil
}

func (s *Store) HealthyService(ctx context.Context, service string,
	options *coordination.QueryOptions) ([]coordination.ServiceEntry, *coordination.QueryMeta, error) {

	var result []coordination.ServiceEntry

	index, err := s.block(ctx, options, func() uint64 {
		result = nil

		var index uint64
		byInstance := make(map[string]*coordination.ServiceEntry)
		var order []string

		for _, c := range s.checks {
			if c.service != service {
				continue
			}
			if c.ModifyIndex > index {
				index = c.ModifyIndex
			}

			instance := c.Node + "/" + c.ServiceID
			entry, ok := byInstance[instance]
			if !ok {
				entry = &coordination.ServiceEntry{
					Node:      c.Node,
					ServiceID: c.ServiceID,
					Service:   service,
				}
				byInstance[instance] = entry
				order = append(order, instance)
			}
			entry.Checks = append(entry.Checks, c.HealthCheck)
		}

		sort.Strings(order)
		for _, instance := range order {
			entry := byInstance[instance]
			if passing(entry.Checks) {
				result = append(result, *entry)
			}
		}

		if index == 0 {
			return s.index
		}
		return index
	})
	if err != nil {
		return nil, nil, err
	}

	return result, &coordination.QueryMeta{LastIndex: index}, nil
}

func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	for _, sess := range s.sessions {
		if sess.timer != nil {
			sess.timer.Stop()
		}
	}
	for _, c := range s.checks {
		if c.timer != nil {
			c.timer.Stop()
		}
	}
	close(s.changed)

	return nil
}

// block runs read under the lock until the index it reports moves past
// options.WaitIndex. Without a WaitIndex it reads once.
func (s *Store) block(ctx context.Context, options *coordination.QueryOptions, read func() uint64) (uint64, error) {
	var timeout <-chan time.Time
	if options != nil && options.WaitIndex > 0 && options.WaitTime > 0 {
		timer := time.NewTimer(options.WaitTime)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		s.mutex.Lock()
		if s.closed {
			s.mutex.Unlock()
			return 0, coordination.ErrClosed
		}
		index := read()
		changed := s.changed
		s.mutex.Unlock()

		if options == nil || options.WaitIndex == 0 || index > options.WaitIndex {
			return index, nil
		}

		select {
		case <-changed:
		case <-timeout:
			return index, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (s *Store) put(pair *coordination.KVPair, holder string) {
	s.bump()
	s.pairs[pair.Key] = &coordination.KVPair{
		Key:         pair.Key,
		Value:       append([]byte(nil), pair.Value...),
		Flags:       pair.Flags,
		ModifyIndex: s.index,
		Session:     holder,
	}
}

func (s *Store) bump() {
	s.index++
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Store) invalidateSession(id string) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	if sess.timer != nil {
		sess.timer.Stop()
	}
	delete(s.sessions, id)

	for _, pair := range s.pairs {
		if pair.Session == id {
			s.bump()
			pair.Session = ""
			pair.ModifyIndex = s.index
		}
	}
}

func (s *Store) expireSession(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess, ok := s.sessions[id]
	if !ok || s.closed {
		return
	}
	if remaining := time.Until(sess.deadline); remaining > 0 {
		sess.timer.Reset(remaining)
		return
	}

	s.invalidateSession(id)
}

func (s *Store) expireCheck(checkID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.checks[checkID]
	if !ok || s.closed || c.Status != coordination.HealthPassing {
		return
	}
	if remaining := time.Until(c.deadline); remaining > 0 {
		c.timer.Reset(remaining)
		return
	}

	s.bump()
	c.Status = coordination.HealthCritical
	c.Output = "TTL expired"
	c.ModifyIndex = s.index
}

func passing(checks []coordination.HealthCheck) bool {
	for _, c := range checks {
		if c.Status != coordination.HealthPassing {
			return false
		}
	}

	return len(checks) > 0
}
