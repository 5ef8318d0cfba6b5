package coordination

import (
	"time"
)

// LockFlagValue marks a key as a lock. It matches the flag used by the
// `consul lock` command so both tools can contend on the same key.
const LockFlagValue uint64 = 0x2ddccbc058a50c18

const (
	HealthPassing  = "passing"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

type KVPair struct {
	Key         string
	Value       []byte
	Flags       uint64
	ModifyIndex uint64
	Session     string
}

// QueryOptions turns a read into a blocking read when WaitIndex is non-zero:
// the call returns once the result's index moves past WaitIndex or WaitTime
// elapses, whichever comes first.
type QueryOptions struct {
	WaitIndex uint64
	WaitTime  time.Duration
}

type QueryMeta struct {
	LastIndex uint64
}

type SessionRequest struct {
	Name string
	TTL  time.Duration
}

type HealthCheck struct {
	CheckID     string
	Node        string
	ServiceID   string
	Status      string
	Output      string
	ModifyIndex uint64
}

type ServiceEntry struct {
	Node      string
	ServiceID string
	Service   string
	Checks    []HealthCheck
}

type ServiceRegistration struct {
	ID      string
	Name    string
	Node    string
	CheckID string
	TTL     time.Duration
}
