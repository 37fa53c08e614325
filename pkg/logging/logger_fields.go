package logging

import (
	"fmt"
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Stringer renders a value through its String method
func Stringer(key string, value fmt.Stringer) Field {
	return Field{Key: key, Value: value.String()}
}

// Replication field helpers
func Component(name string) Field {
	return String("component", name)
}

func ReplicaID(id uint16) Field {
	return Field{Key: "replica_id", Value: id}
}

// PeerID identifies the remote end of a session
func PeerID(id uint16) Field {
	return Field{Key: "peer_id", Value: id}
}

func GroupID(id uint8) Field {
	return Field{Key: "group_id", Value: id}
}

func CSN(c fmt.Stringer) Field {
	return Stringer("csn", c)
}

func BaseDN(dn fmt.Stringer) Field {
	return Stringer("base_dn", dn)
}

func MsgType(t fmt.Stringer) Field {
	return Stringer("msg_type", t)
}

func Version(v fmt.Stringer) Field {
	return Stringer("protocol_version", v)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
