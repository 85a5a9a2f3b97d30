package cache

import (
	"context"
)

// FetchFn is the function signature Query expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// NetworkStatus is the process-wide reachability signal. Subscribers are
// called with the new value on every change; the returned func unsubscribes.
type NetworkStatus interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Persister is the durable local storage the client writes its snapshot to.
// Load must return an error in the not-found category when key is absent.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Remove(ctx context.Context, key string) error
}

// Level is the severity of a Notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a short, user facing message.
type Notice struct {
	Level      Level
	Message    string
	Err        error
	Resource   string
	MutationID string
}

// Notifier surfaces notices to the user, the way a toast would.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Messages published by the client on connectivity changes.
const (
	MessageBackOnline = "You are back online! syncing data"
	MessageOffline    = "You are currently offline. Please check your connection."
)

type alwaysOnline struct{}

func (alwaysOnline) IsOnline() bool              { return true }
func (alwaysOnline) Subscribe(func(bool)) func() { return func() {} }
