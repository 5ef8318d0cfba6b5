package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"github.com/cafebazaar/coordination-helper/internal/backend/memory"
	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

const (
	KEY   = "gv0-command-lock"
	VALUE = "1"
)

type MemoryStoreTestSuite struct {
	suite.Suite

	store *memory.Store
	ctx   context.Context
}

func TestMemoryStoreTestSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreTestSuite))
}

func (s *MemoryStoreTestSuite) TestCompareAndSetWithZeroIndexShouldOnlyCreate() {
	ok, err := s.store.CompareAndSet(s.ctx, &coordination.KVPair{Key: KEY, Value: []byte(VALUE)})
	s.Nil(err)
	s.True(ok)

	ok, err = s.store.CompareAndSet(s.ctx, &coordination.KVPair{Key: KEY, Value: []byte("2")})
	s.Nil(err)
	s.False(ok)
}

func (s *MemoryStoreTestSuite) TestCompareAndSetShouldRejectStaleIndex() {
	s.set(KEY, VALUE)
	pair, _, err := s.store.Get(s.ctx, KEY, nil)
	s.Require().Nil(err)

	ok, err := s.store.CompareAndSet(s.ctx, &coordination.KVPair{Key: KEY, Value: []byte("2"), ModifyIndex: pair.ModifyIndex})
	s.Nil(err)
	s.True(ok)

	ok, err = s.store.CompareAndSet(s.ctx, &coordination.KVPair{Key: KEY, Value: []byte("3"), ModifyIndex: pair.ModifyIndex})
	s.Nil(err)
	s.False(ok)
}

func (s *MemoryStoreTestSuite) TestGetShouldBlockUntilIndexChanges() {
	s.set(KEY, VALUE)
	pair, meta, err := s.store.Get(s.ctx, KEY, nil)
	s.Require().Nil(err)

	result := make(chan *coordination.KVPair, 1)
	go func() {
		p, _, _ := s.store.Get(s.ctx, KEY, &coordination.QueryOptions{WaitIndex: meta.LastIndex})
		result <- p
	}()

	select {
	case <-result:
		s.FailNow("blocking read returned before any change")
	case <-time.After(50 * time.Millisecond):
	}

	ok, err := s.store.CompareAndSet(s.ctx, &coordination.KVPair{Key: KEY, Value: []byte("2"), ModifyIndex: pair.ModifyIndex})
	s.Require().True(ok)
	s.Require().Nil(err)

	select {
	case p := <-result:
		s.Equal("2", string(p.Value))
	case <-time.After(time.Second):
		s.FailNow("blocking read was not woken up")
	}
}

func (s *MemoryStoreTestSuite) TestGetShouldReturnAfterWaitTime() {
	_, meta, err := s.store.Get(s.ctx, KEY, nil)
	s.Require().Nil(err)

	started := time.Now()
	_, _, err = s.store.Get(s.ctx, KEY, &coordination.QueryOptions{WaitIndex: meta.LastIndex, WaitTime: 30 * time.Millisecond})
	s.Nil(err)
	s.True(time.Since(started) >= 30*time.Millisecond)
}

func (s *MemoryStoreTestSuite) TestFreshStoreShouldNotReportIndexZero() {
	pair, meta, err := s.store.Get(s.ctx, KEY, nil)
	s.Nil(err)
	s.Nil(pair)
	s.True(meta.LastIndex > 0)

	entries, meta, err := s.store.HealthyService(s.ctx, "glusterd", nil)
	s.Nil(err)
	s.Empty(entries)
	s.True(meta.LastIndex > 0)
}

func (s *MemoryStoreTestSuite) TestAcquireShouldBeExclusive() {
	first := s.session(0)
	second := s.session(0)

	ok, err := s.store.Acquire(s.ctx, &coordination.KVPair{Key: KEY, Session: first})
	s.Nil(err)
	s.True(ok)

	ok, err = s.store.Acquire(s.ctx, &coordination.KVPair{Key: KEY, Session: second})
	s.Nil(err)
	s.False(ok)

	ok, err = s.store.Release(s.ctx, &coordination.KVPair{Key: KEY, Session: second})
	s.Nil(err)
	s.False(ok)

	ok, err = s.store.Release(s.ctx, &coordination.KVPair{Key: KEY, Session: first})
	s.Nil(err)
	s.True(ok)

	ok, err = s.store.Acquire(s.ctx, &coordination.KVPair{Key: KEY, Session: second})
	s.Nil(err)
	s.True(ok)
}

func (s *MemoryStoreTestSuite) TestAcquireWithUnknownSessionShouldFail() {
	_, err := s.store.Acquire(s.ctx, &coordination.KVPair{Key: KEY, Session: "nope"})
	s.True(errors.Is(err, coordination.ErrSessionNotFound))
}

func (s *MemoryStoreTestSuite) TestExpiredSessionShouldReleaseItsLocks() {
	id := s.session(30 * time.Millisecond)
	ok, err := s.store.Acquire(s.ctx, &coordination.KVPair{Key: KEY, Session: id})
	s.Require().Nil(err)
	s.Require().True(ok)

	s.Eventually(func() bool {
		pair, _, err := s.store.Get(s.ctx, KEY, nil)
		return err == nil && pair != nil && pair.Session == ""
	}, time.Second, 10*time.Millisecond)

	s.Equal(coordination.ErrSessionNotFound, s.store.RenewSession(s.ctx, id))
}

func (s *MemoryStoreTestSuite) TestRenewedSessionShouldSurvivePastItsTTL() {
	id := s.session(60 * time.Millisecond)
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		s.Require().Nil(s.store.RenewSession(s.ctx, id))
	}
}

func (s *MemoryStoreTestSuite) TestCreateSessionWithoutLeaderShouldBeUnavailable() {
	s.store.SetLeader("")
	_, err := s.store.CreateSession(s.ctx, coordination.SessionRequest{Name: "probe"})
	s.True(errors.Is(err, coordination.ErrUnavailable))
}

func (s *MemoryStoreTestSuite) TestPassedCheckShouldExpireToCritical() {
	s.Require().Nil(s.store.RegisterService(s.ctx, coordination.ServiceRegistration{
		Name:    "glusterd",
		CheckID: "glusterd-ttl",
		TTL:     40 * time.Millisecond,
	}))

	status, ok := s.store.CheckStatus("glusterd-ttl")
	s.True(ok)
	s.Equal(coordination.HealthCritical, status)

	s.Nil(s.store.PassCheck(s.ctx, "glusterd-ttl", "ok"))
	entries, _, err := s.store.HealthyService(s.ctx, "glusterd", nil)
	s.Nil(err)
	s.Len(entries, 1)

	s.Eventually(func() bool {
		status, _ := s.store.CheckStatus("glusterd-ttl")
		return status == coordination.HealthCritical
	}, time.Second, 10*time.Millisecond)

	entries, _, err = s.store.HealthyService(s.ctx, "glusterd", nil)
	s.Nil(err)
	s.Empty(entries)
}

func (s *MemoryStoreTestSuite) TestPassUnknownCheckShouldFail() {
	err := s.store.PassCheck(s.ctx, "missing", "")
	s.True(errors.Is(err, coordination.ErrCheckNotFound))
}

func (s *MemoryStoreTestSuite) TestClosedStoreShouldReturnErrClosed() {
	s.Nil(s.store.Close())
	_, _, err := s.store.Get(s.ctx, KEY, nil)
	s.Equal(coordination.ErrClosed, err)
}

func (s *MemoryStoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
}

func (s *MemoryStoreTestSuite) TearDownTest() {
	s.Nil(s.store.Close())
}

func (s *MemoryStoreTestSuite) set(key, value string) {
	pair, _, err := s.store.Get(s.ctx, key, nil)
	s.Require().Nil(err)

	var index uint64
	if pair != nil {
		index = pair.ModifyIndex
	}

	ok, err := s.store.CompareAndSet(s.ctx, &coordination.KVPair{Key: key, Value: []byte(value), ModifyIndex: index})
	s.Require().Nil(err)
	s.Require().True(ok)
}

func (s *MemoryStoreTestSuite) session(ttl time.Duration) string {
	id, err := s.store.CreateSession(s.ctx, coordination.SessionRequest{Name: "test", TTL: ttl})
	s.Require().Nil(err)
	return id
}
