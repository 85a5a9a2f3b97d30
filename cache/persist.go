package cache

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-query-cache/codec"
	"github.com/goliatone/go-query-cache/faults"
	"github.com/goliatone/go-query-cache/logging"
)

// SnapshotVersion is the format version written into every snapshot.
// Snapshots with a different major version are discarded on restore.
const SnapshotVersion = "1.0.0"

// MessageRestoreFailed is the notice published when a snapshot is dropped.
const MessageRestoreFailed = "Saved data could not be restored and was cleared"

var currentSnapshotVersion = semver.MustParse(SnapshotVersion)

// Snapshot is the persisted state of a client: its successful queries and
// its queue of paused mutations.
type Snapshot struct {
	Version   string            `json:"version"`
	Buster    string            `json:"buster,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Queries   []DehydratedQuery `json:"queries"`
	Mutations []PendingMutation `json:"mutations"`
}

// DehydratedQuery is one cached entry. Data is encoded with the snapshot
// codec and decoded into the caller's type on first read.
type DehydratedQuery struct {
	Key         Key       `json:"key"`
	Status      Status    `json:"status"`
	Data        []byte    `json:"data,omitempty"`
	Error       string    `json:"error,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
	Invalidated bool      `json:"invalidated,omitempty"`
	Infinite    bool      `json:"infinite,omitempty"`
}

// RestoreReport describes what Restore loaded.
type RestoreReport struct {
	Queries   int
	Mutations int
	// Discarded is set when a snapshot existed but could not be used.
	Discarded bool
	Reason    string
	Resume    ResumeReport
}

// Restore loads the persisted snapshot into the client. It is meant to run
// once, right after NewClient.
//
// A corrupt, foreign or expired snapshot is logged, reported through the
// notifier and removed; the client then starts empty. After a successful
// restore the paused mutations are replayed and every restored query is
// invalidated, so the first read refetches it.
func (c *Client) Restore(ctx context.Context) (RestoreReport, error) {
	var report RestoreReport
	if err := c.alive(); err != nil {
		return report, err
	}
	if c.persister == nil {
		return report, nil
	}

	blob, err := c.persister.Load(ctx, c.cfg.PersistKey)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return report, nil
		}
		return report, goerrors.Wrap(err, goerrors.CategoryExternal, "load snapshot")
	}

	snap, cd, err := decodeSnapshot(blob)
	if err == nil {
		err = c.checkSnapshot(snap)
	}
	if err != nil {
		c.discardSnapshot(ctx, err)
		report.Discarded = true
		report.Reason = faults.Message(err)
		return report, nil
	}

	report.Queries = c.hydrate(snap.Queries, cd)
	report.Mutations = c.queue.merge(snap.Mutations)
	c.logger.Info("snapshot restored", logging.Fields{
		"queries":   report.Queries,
		"mutations": report.Mutations,
		"codec":     cd.Name(),
		"age":       c.now().Sub(snap.Timestamp).String(),
	})

	report.Resume, _ = c.ResumePausedMutations(ctx)
	c.InvalidateAll(ctx)
	return report, nil
}

func decodeSnapshot(blob []byte) (Snapshot, codec.Codec, error) {
	var snap Snapshot
	name, payload, err := codec.Unframe(blob)
	if err != nil {
		return snap, nil, err
	}
	cd, err := codec.ByName(name)
	if err != nil {
		return snap, nil, faults.Serialization(err, "unknown snapshot codec")
	}
	if err := cd.Unmarshal(payload, &snap); err != nil {
		return snap, nil, faults.Serialization(err, "decode snapshot")
	}
	return snap, cd, nil
}

func (c *Client) checkSnapshot(snap Snapshot) error {
	v, err := semver.NewVersion(snap.Version)
	if err != nil {
		return faults.Serialization(err, "invalid snapshot version")
	}
	if v.Major() != currentSnapshotVersion.Major() {
		return faults.Serialization(nil, "incompatible snapshot version "+snap.Version)
	}
	if snap.Buster != c.cfg.Buster {
		return faults.Serialization(nil, "snapshot buster mismatch")
	}
	if c.cfg.MaxAge > 0 && c.now().Sub(snap.Timestamp) > c.cfg.MaxAge {
		return faults.Serialization(nil, "snapshot expired")
	}
	return nil
}

func (c *Client) discardSnapshot(ctx context.Context, cause error) {
	c.logger.Warn("discarding persisted snapshot", logging.Fields{"error": cause.Error()})
	c.notifier.Notify(ctx, Notice{Level: LevelWarn, Message: MessageRestoreFailed, Err: cause})
	if err := c.persister.Remove(ctx, c.cfg.PersistKey); err != nil && !goerrors.IsNotFound(err) {
		c.logger.Error("remove persisted snapshot", logging.Fields{"error": err.Error()})
	}
}

// hydrate installs restored queries. Keys already present are left alone.
func (c *Client) hydrate(queries []DehydratedQuery, cd codec.Codec) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, q := range queries {
		if len(q.Key) == 0 || q.FetchedAt.IsZero() {
			continue
		}
		skey := c.encode(q.Key)
		if _, ok := c.store.Get(skey); ok {
			continue
		}
		e := &entry{
			key:         NewKey(q.Key...),
			status:      q.Status,
			raw:         q.Data,
			rawCodec:    cd,
			fetchedAt:   q.FetchedAt,
			invalidated: q.Invalidated,
			infinite:    q.Infinite,
		}
		if e.raw == nil {
			e.rawCodec = nil
		}
		if q.Error != "" {
			e.err = goerrors.New(q.Error, goerrors.CategoryExternal)
		}
		c.store.Set(skey, e)
		n++
	}
	return n
}

// dehydrate captures every entry that holds data plus the queue.
func (c *Client) dehydrate() Snapshot {
	snap := Snapshot{
		Version:   SnapshotVersion,
		Buster:    c.cfg.Buster,
		Timestamp: c.now().UTC(),
		Mutations: c.queue.snapshot(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, skey := range c.store.Keys() {
		e, ok := c.store.Get(skey)
		if !ok || !e.hasData() {
			continue
		}
		data, err := c.encodeData(e)
		if err != nil {
			c.logger.Warn("skipping query in snapshot", logging.Fields{"key": skey, "error": err.Error()})
			continue
		}
		q := DehydratedQuery{
			Key:         NewKey(e.key...),
			Status:      e.status,
			Data:        data,
			FetchedAt:   e.fetchedAt,
			Invalidated: e.invalidated,
			Infinite:    e.infinite,
		}
		if e.err != nil {
			q.Error = e.err.Error()
		}
		snap.Queries = append(snap.Queries, q)
	}
	return snap
}

// encodeData encodes entry data with the client codec. Restored bytes that
// were never read are passed through, or transcoded when the codec changed.
func (c *Client) encodeData(e *entry) ([]byte, error) {
	if e.raw != nil {
		if e.rawCodec.Name() == c.codec.Name() {
			return e.raw, nil
		}
		var v any
		if err := e.rawCodec.Unmarshal(e.raw, &v); err != nil {
			return nil, faults.Serialization(err, "transcode restored query")
		}
		return c.marshal(v)
	}
	if e.data == nil {
		return nil, nil
	}
	return c.marshal(e.data)
}

func (c *Client) marshal(v any) ([]byte, error) {
	b, err := c.codec.Marshal(v)
	if err != nil {
		return nil, faults.Serialization(err, "encode query data")
	}
	return b, nil
}

// persistNow writes the full snapshot.
func (c *Client) persistNow(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	snap := c.dehydrate()
	body, err := c.codec.Marshal(snap)
	if err != nil {
		err = faults.Serialization(err, "encode snapshot")
		c.logger.Error("persist snapshot", logging.Fields{"error": err.Error()})
		return err
	}
	if err := c.persister.Save(ctx, c.cfg.PersistKey, codec.Frame(c.codec.Name(), body)); err != nil {
		c.logger.Error("persist snapshot", logging.Fields{"error": err.Error()})
		return err
	}
	c.logger.Debug("snapshot persisted", logging.Fields{
		"queries":   len(snap.Queries),
		"mutations": len(snap.Mutations),
	})
	return nil
}

// persistQueue writes the snapshot after a queue change. Failures are
// logged; the queue itself stays authoritative in memory.
func (c *Client) persistQueue(ctx context.Context) {
	_ = c.persistNow(ctx)
}

// schedulePersist writes the snapshot at most once per PersistThrottle.
func (c *Client) schedulePersist() {
	if c.persister == nil || c.closed.Load() {
		return
	}
	if c.cfg.PersistThrottle == 0 {
		_ = c.persistNow(context.Background())
		return
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if c.persistTimer != nil {
		return
	}
	c.persistTimer = time.AfterFunc(c.cfg.PersistThrottle, func() {
		c.persistMu.Lock()
		c.persistTimer = nil
		c.persistMu.Unlock()
		if c.closed.Load() {
			return
		}
		_ = c.persistNow(context.Background())
	})
}
