// Package natskv persists orders in a NATS JetStream key-value bucket.
//
// Each order is stored as a JSON document under its id. Update is a
// compare-and-set on the bucket revision of the entry the order version was
// read from, so concurrent writers across processes cannot lose updates.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/logging"
	"github.com/hupe1980/stepflow/order"
)

var _ core.OrderStore = (*Store)(nil)

var validKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

// Options configures a Store.
type Options struct {
	// Bucket is the key-value bucket name.
	Bucket string
	// History is the number of revisions kept per order.
	History uint8
	// TTL expires orders after the given duration. Zero keeps them forever.
	TTL time.Duration
	// Timeout bounds every bucket operation. Zero disables the bound.
	Timeout time.Duration
	// Logger receives store events.
	Logger logging.Logger
}

// DefaultOptions returns the defaults used by New.
func DefaultOptions() Options {
	return Options{
		Bucket:  "stepflow_orders",
		History: 5,
		Timeout: 5 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
}

// Store is a core.OrderStore backed by a JetStream key-value bucket.
type Store struct {
	bucket jetstream.KeyValue
	opts   Options
}

// New opens the configured bucket, creating it when it does not exist yet.
func New(ctx context.Context, js jetstream.JetStream, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	bucket, err := js.KeyValue(ctx, opts.Bucket)
	if err == nil {
		return newStore(bucket, opts), nil
	}

	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, core.WrapTransient(err, "natskv", "New", "open bucket "+opts.Bucket)
	}

	bucket, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      opts.Bucket,
		Description: "stepflow order records",
		History:     opts.History,
		TTL:         opts.TTL,
	})
	if err != nil {
		// Another instance may have created the bucket concurrently.
		if existing, getErr := js.KeyValue(ctx, opts.Bucket); getErr == nil {
			return newStore(existing, opts), nil
		}
		return nil, core.WrapTransient(err, "natskv", "New", "create bucket "+opts.Bucket)
	}

	opts.Logger.Info("natskv.bucket.created", "bucket", opts.Bucket)

	return newStore(bucket, opts), nil
}

// NewFromBucket wraps an already opened bucket.
func NewFromBucket(bucket jetstream.KeyValue, optFns ...func(o *Options)) *Store {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newStore(bucket, opts)
}

func newStore(bucket jetstream.KeyValue, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Store{bucket: bucket, opts: opts}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return ctx, func() {}
}

// Create stores order under its id. The stored version starts at 1 and is
// written back to order.
func (s *Store) Create(ctx context.Context, o *core.Order) error {
	if o == nil || !validKey.MatchString(o.ID) {
		return core.WrapInvalid(core.ErrInvalidArgument, "natskv", "Create", "invalid order id")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	record := o.Clone()
	record.Version = 1

	data, err := json.Marshal(record)
	if err != nil {
		return core.WrapFatal(err, "natskv", "Create", "encode order "+o.ID)
	}

	rev, err := s.bucket.Create(ctx, o.ID, data)
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %s", core.ErrOrderExists, o.ID)
		}
		return core.WrapTransient(err, "natskv", "Create", "order "+o.ID)
	}

	o.Version = 1

	s.opts.Logger.Debug("natskv.order.created", "order_id", o.ID, "revision", rev)

	return nil
}

// Get loads the order stored under id.
func (s *Store) Get(ctx context.Context, id string) (*core.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	o, _, err := s.load(ctx, "Get", id)
	return o, err
}

// Update writes order when the stored version equals order.Version. The
// write is conditional on the bucket revision that version was read from.
func (s *Store) Update(ctx context.Context, o *core.Order) error {
	if o == nil {
		return core.WrapInvalid(core.ErrInvalidArgument, "natskv", "Update", "order is nil")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored, rev, err := s.load(ctx, "Update", o.ID)
	if err != nil {
		return err
	}

	if stored.Version != o.Version {
		return fmt.Errorf("%w: %s has version %d, update based on %d",
			core.ErrVersionConflict, o.ID, stored.Version, o.Version)
	}

	record := o.Clone()
	record.Version = o.Version + 1
	if record.Updated.IsZero() {
		record.Updated = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return core.WrapFatal(err, "natskv", "Update", "encode order "+o.ID)
	}

	newRev, err := s.bucket.Update(ctx, o.ID, data, rev)
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %s changed concurrently", core.ErrVersionConflict, o.ID)
		}
		return core.WrapTransient(err, "natskv", "Update", "order "+o.ID)
	}

	o.Version = record.Version

	s.opts.Logger.Debug("natskv.order.updated", "order_id", o.ID, "version", o.Version, "revision", newRev)

	return nil
}

// Delete removes the order.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, _, err := s.load(ctx, "Delete", id); err != nil {
		return err
	}

	if err := s.bucket.Delete(ctx, id); err != nil {
		return core.WrapTransient(err, "natskv", "Delete", "order "+id)
	}

	return nil
}

// List returns all orders sorted by creation time, then id.
func (s *Store) List(ctx context.Context) ([]*core.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []*core.Order{}, nil
		}
		return nil, core.WrapTransient(err, "natskv", "List", "list keys")
	}

	out := make([]*core.Order, 0, len(keys))
	for _, k := range keys {
		o, _, err := s.load(ctx, "List", k)
		if err != nil {
			// Deleted between listing and loading.
			if errors.Is(err, core.ErrOrderNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, o)
	}

	order.SortOrders(out)

	return out, nil
}

func (s *Store) load(ctx context.Context, op, id string) (*core.Order, uint64, error) {
	if !validKey.MatchString(id) {
		return nil, 0, fmt.Errorf("%w: %s", core.ErrOrderNotFound, id)
	}

	entry, err := s.bucket.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, 0, fmt.Errorf("%w: %s", core.ErrOrderNotFound, id)
		}
		return nil, 0, core.WrapTransient(err, "natskv", op, "order "+id)
	}

	o, err := decode(entry.Value())
	if err != nil {
		return nil, 0, core.WrapFatal(err, "natskv", op, "decode order "+id)
	}

	return o, entry.Revision(), nil
}

func decode(data []byte) (*core.Order, error) {
	var o core.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}

	if o.Data == nil {
		o.Data = map[string]any{}
	}
	if o.History == nil {
		o.History = []core.StepRecord{}
	}
	if o.Metadata == nil {
		o.Metadata = map[string]string{}
	}

	return &o, nil
}

func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") || strings.Contains(msg, "10071")
}
