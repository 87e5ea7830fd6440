package core

import (
	"time"
)

// Snapshot is the read-only input of one engine execution: the current
// step's submission plus everything accumulated on the order so far.
//
// Contract:
//   - All data is deep-copied at construction; later changes to the order
//     record or the caller's input map are never observed through a Snapshot.
//     Data DeepCopy cannot fully copy is rejected with ErrInvalidArgument.
//   - Every mapping is an immutable Values; write attempts fail with
//     ErrUnsupportedModification.
//   - A Snapshot is safe to share between goroutines.
type Snapshot struct {
	orderID     string
	flow        string
	step        string
	version     uint64
	current     Values
	accumulated Values
	merged      Values
	metadata    Values
	createdAt   time.Time
}

// OrderID returns the id of the order the snapshot was taken from.
func (s *Snapshot) OrderID() string { return s.orderID }

// Flow returns the flow name of the order.
func (s *Snapshot) Flow() string { return s.flow }

// Step returns the step the submission targets.
func (s *Snapshot) Step() string { return s.step }

// Version returns the order version the snapshot was taken at.
func (s *Snapshot) Version() uint64 { return s.version }

// Current returns the current step's submission data.
func (s *Snapshot) Current() Values { return s.current }

// Accumulated returns the data accumulated across prior steps.
func (s *Snapshot) Accumulated() Values { return s.accumulated }

// Merged returns accumulated data overridden by the current submission.
func (s *Snapshot) Merged() Values { return s.merged }

// Metadata returns static metadata attached by the ContextBuilder.
func (s *Snapshot) Metadata() Values { return s.metadata }

// CreatedAt returns the construction timestamp.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// ContextBuilder assembles snapshots for engine consumption. It is the
// ownership boundary between the mutable order record, the caller's input and
// the engine.
type ContextBuilder struct {
	clock    func() time.Time
	metadata Values
}

// ContextBuilderOptions configures a ContextBuilder.
type ContextBuilderOptions struct {
	// Clock returns the snapshot timestamp. Defaults to time.Now in UTC.
	Clock func() time.Time
	// Metadata is attached to every snapshot.
	Metadata map[string]any
}

// NewContextBuilder creates a ContextBuilder with optional overrides.
func NewContextBuilder(optFns ...func(o *ContextBuilderOptions)) *ContextBuilder {
	opts := ContextBuilderOptions{
		Clock: func() time.Time { return time.Now().UTC() },
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ContextBuilder{clock: opts.Clock, metadata: NewValues(opts.Metadata)}
}

// Build snapshots order and the current submission for stepID.
func (b *ContextBuilder) Build(order *Order, stepID string, current map[string]any) (*Snapshot, error) {
	if order == nil {
		return nil, WrapInvalid(ErrInvalidArgument, "core", "ContextBuilder.Build", "order is nil")
	}

	if stepID == "" {
		return nil, WrapInvalid(ErrInvalidArgument, "core", "ContextBuilder.Build", "step id is empty")
	}

	if err := CheckCopyable(current); err != nil {
		return nil, err
	}

	if err := CheckCopyable(order.Data); err != nil {
		return nil, err
	}

	cur := NewValues(current)
	acc := NewValues(order.Data)

	return &Snapshot{
		orderID:     order.ID,
		flow:        order.Flow,
		step:        stepID,
		version:     order.Version,
		current:     cur,
		accumulated: acc,
		merged:      acc.Merge(cur),
		metadata:    b.metadata,
		createdAt:   b.clock(),
	}, nil
}
