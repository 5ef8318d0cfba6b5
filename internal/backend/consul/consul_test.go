package consul_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	capi "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"github.com/cafebazaar/coordination-helper/internal/backend/consul"
	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

const (
	KEY   = "gv0.machine-up-counter"
	VALUE = "3"
)

type ConsulStoreTestSuite struct {
	suite.Suite

	server *httptest.Server
	store  coordination.Store

	mutex    sync.Mutex
	requests []*http.Request
	bodies   []string
	handlers map[string]http.HandlerFunc
}

func TestConsulStoreTestSuite(t *testing.T) {
	suite.Run(t, new(ConsulStoreTestSuite))
}

func (s *ConsulStoreTestSuite) TestLeaderShouldReturnReportedLeader() {
	s.handle("/v1/status/leader", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `"10.0.0.1:8300"`)
	})

	leader, err := s.store.Leader(context.Background())
	s.Nil(err)
	s.Equal("10.0.0.1:8300", leader)
}

func (s *ConsulStoreTestSuite) TestLeaderShouldReturnEmptyWhenNoLeaderIsElected() {
	s.handle("/v1/status/leader", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `""`)
	})

	leader, err := s.store.Leader(context.Background())
	s.Nil(err)
	s.Empty(leader)
}

func (s *ConsulStoreTestSuite) TestServerErrorShouldBeReportedAsUnavailable() {
	s.handle("/v1/session/create", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "No cluster leader")
	})

	_, err := s.store.CreateSession(context.Background(), coordination.SessionRequest{Name: "probe"})
	s.True(errors.Is(err, coordination.ErrUnavailable))
}

func (s *ConsulStoreTestSuite) TestConnectionErrorShouldNotBeReportedAsUnavailable() {
	s.server.Close()

	_, err := s.store.Leader(context.Background())
	s.NotNil(err)
	s.False(errors.Is(err, coordination.ErrUnavailable))
}

func (s *ConsulStoreTestSuite) TestGetShouldReturnNilForMissingKey() {
	s.handle("/v1/kv/"+KEY, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Consul-Index", "12")
		w.WriteHeader(http.StatusNotFound)
	})

	pair, meta, err := s.store.Get(context.Background(), KEY, nil)
	s.Nil(err)
	s.Nil(pair)
	s.Equal(uint64(12), meta.LastIndex)
}

func (s *ConsulStoreTestSuite) TestGetShouldDecodePairAndIssueConsistentRead() {
	s.handle("/v1/kv/"+KEY, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Consul-Index", "42")
		fmt.Fprintf(w, `[{"Key":%q,"Value":%q,"Flags":7,"ModifyIndex":42,"Session":"abc"}]`,
			KEY, base64.StdEncoding.EncodeToString([]byte(VALUE)))
	})

	pair, meta, err := s.store.Get(context.Background(), KEY, nil)
	s.Nil(err)
	s.Require().NotNil(pair)
	s.Equal(VALUE, string(pair.Value))
	s.Equal(uint64(7), pair.Flags)
	s.Equal(uint64(42), pair.ModifyIndex)
	s.Equal("abc", pair.Session)
	s.Equal(uint64(42), meta.LastIndex)

	request := s.lastRequest()
	_, consistent := request.URL.Query()["consistent"]
	s.True(consistent)
}

func (s *ConsulStoreTestSuite) TestGetShouldPassWaitIndexForBlockingReads() {
	s.handle("/v1/kv/"+KEY, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Consul-Index", "43")
		w.WriteHeader(http.StatusNotFound)
	})

	_, _, err := s.store.Get(context.Background(), KEY, &coordination.QueryOptions{
		WaitIndex: 42,
		WaitTime:  8 * time.Second,
	})
	s.Nil(err)

	query := s.lastRequest().URL.Query()
	s.Equal("42", query.Get("index"))
	s.Equal("8000ms", query.Get("wait"))
}

func (s *ConsulStoreTestSuite) TestCompareAndSetShouldSendCASIndex() {
	s.handle("/v1/kv/"+KEY, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "false")
	})

	ok, err := s.store.CompareAndSet(context.Background(), &coordination.KVPair{
		Key:         KEY,
		Value:       []byte(VALUE),
		ModifyIndex: 41,
	})
	s.Nil(err)
	s.False(ok)

	request := s.lastRequest()
	s.Equal(http.MethodPut, request.Method)
	s.Equal("41", request.URL.Query().Get("cas"))
	s.Equal(VALUE, s.lastBody())
}

func (s *ConsulStoreTestSuite) TestAcquireShouldSendSessionAndFlags() {
	s.handle("/v1/kv/"+KEY+"/.lock", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "true")
	})

	ok, err := s.store.Acquire(context.Background(), &coordination.KVPair{
		Key:     KEY + "/.lock",
		Value:   []byte("host"),
		Flags:   coordination.LockFlagValue,
		Session: "sess",
	})
	s.Nil(err)
	s.True(ok)

	query := s.lastRequest().URL.Query()
	s.Equal("sess", query.Get("acquire"))
	s.Equal(fmt.Sprintf("%d", coordination.LockFlagValue), query.Get("flags"))
}

func (s *ConsulStoreTestSuite) TestRenewSessionShouldReportMissingSession() {
	s.handle("/v1/session/renew/sess", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := s.store.RenewSession(context.Background(), "sess")
	s.Equal(coordination.ErrSessionNotFound, err)
}

func (s *ConsulStoreTestSuite) TestCreateSessionShouldUseReleaseBehaviourAndTTL() {
	s.handle("/v1/session/create", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ID":"sess"}`)
	})

	id, err := s.store.CreateSession(context.Background(), coordination.SessionRequest{
		Name: "lock",
		TTL:  10 * time.Second,
	})
	s.Nil(err)
	s.Equal("sess", id)
	s.Contains(s.lastBody(), `"TTL":"10s"`)
	s.Contains(s.lastBody(), `"Behavior":"release"`)
}

func (s *ConsulStoreTestSuite) TestPassCheckShouldUpdateTTLAsPassing() {
	s.handle("/v1/agent/check/update/service:gluster", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.Nil(s.store.PassCheck(context.Background(), "service:gluster", "ok"))
	s.Contains(s.lastBody(), `"Status":"passing"`)
	s.Contains(s.lastBody(), `"Output":"ok"`)
}

func (s *ConsulStoreTestSuite) TestHealthyServiceShouldConvertEntries() {
	s.handle("/v1/health/service/glusterd", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("1", r.URL.Query().Get("passing"))
		w.Header().Set("X-Consul-Index", "77")
		fmt.Fprint(w, `[{"Node":{"Node":"node-1"},"Service":{"ID":"glusterd","Service":"glusterd"},`+
			`"Checks":[{"CheckID":"service:glusterd","Status":"passing","ModifyIndex":76}]}]`)
	})

	entries, meta, err := s.store.HealthyService(context.Background(), "glusterd", nil)
	s.Nil(err)
	s.Equal(uint64(77), meta.LastIndex)
	s.Require().Len(entries, 1)
	s.Equal("node-1", entries[0].Node)
	s.Equal("glusterd", entries[0].Service)
	s.Require().Len(entries[0].Checks, 1)
	s.Equal(uint64(76), entries[0].Checks[0].ModifyIndex)
	s.Equal(coordination.HealthPassing, entries[0].Checks[0].Status)
}

func (s *ConsulStoreTestSuite) TestClosedStoreShouldReturnErrClosed() {
	s.Nil(s.store.Close())
	_, _, err := s.store.Get(context.Background(), KEY, nil)
	s.Equal(coordination.ErrClosed, err)
}

func (s *ConsulStoreTestSuite) SetupTest() {
	s.handlers = make(map[string]http.HandlerFunc)
	s.requests = nil
	s.bodies = nil

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mutex.Lock()
		s.requests = append(s.requests, r)
		s.bodies = append(s.bodies, string(body))
		handler, ok := s.handlers[r.URL.Path]
		s.mutex.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		handler(w, r)
	}))

	client, err := capi.NewClient(&capi.Config{
		Address: strings.TrimPrefix(s.server.URL, "http://"),
	})
	if err != nil {
		s.FailNow("failed to create consul client")
	}

	s.store = consul.NewWithClient(client)
}

func (s *ConsulStoreTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ConsulStoreTestSuite) handle(path string, handler http.HandlerFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handlers[path] = handler
}

func (s *ConsulStoreTestSuite) lastRequest() *http.Request {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Require().NotEmpty(s.requests)
	return s.requests[len(s.requests)-1]
}

func (s *ConsulStoreTestSuite) lastBody() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Require().NotEmpty(s.bodies)
	return s.bodies[len(s.bodies)-1]
}
