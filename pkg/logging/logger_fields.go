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

// Component names the subsystem emitting the line (prober, monitor, trigger, ...)
func Component(name string) Field {
	return String("component", name)
}

// Node identifies a database node by name and host:port
func Node(name, addr string) Field {
	return Field{Key: "node", Value: name + "@" + addr}
}

func Role(role string) Field {
	return String("role", role)
}

// Attempt renders a retry counter as "n/budget"
func Attempt(n, budget int) Field {
	return Field{Key: "attempt", Value: fmt.Sprintf("%d/%d", n, budget)}
}

func Outcome(o string) Field {
	return String("outcome", o)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Path(p string) Field {
	return String("path", p)
}

// RequestID carries the id of a failover decision or reattach request
func RequestID(id string) Field {
	return String("request_id", id)
}
