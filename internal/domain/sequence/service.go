package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"possync/internal/core/apperror"
	"possync/internal/core/failure"
	"possync/internal/core/numerator"
	"possync/internal/core/retry"
	"possync/pkg/logger"
)

const (
	// DefaultFloor is the sequence assumed before any invoice exists; the
	// first reservation is DefaultFloor+1.
	DefaultFloor int64 = 999

	// DefaultMaxAttempts bounds the collision-retry loop of Reserve.
	DefaultMaxAttempts = 20
)

// StateCache persists State locally. Read returns nil for a company that was never written.
type StateCache interface {
	Read(ctx context.Context, companyID string) (*State, error)
	Write(ctx context.Context, companyID string, st State) error
}

// RemoteOracle answers questions about numbers already present remotely.
type RemoteOracle interface {
	FetchHighestSequence(ctx context.Context, companyID string) (int64, bool)
	Exists(ctx context.Context, invoiceNumber, companyID string) (bool, error)
}

// Config configures the reservation service.
type Config struct {
	Floor       int64
	MaxAttempts int
	Format      numerator.Config
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Floor:       DefaultFloor,
		MaxAttempts: DefaultMaxAttempts,
		Format:      numerator.DefaultConfig(),
	}
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for date stamps and state timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type companyState struct {
	mu      sync.Mutex
	synced  bool
	current State
}

// Service reserves, commits and reverts invoice numbers.
//
// All operations for one company are serialized inside the process, which
// makes numbers issued by a single terminal unique. Uniqueness across terminals
// relies on the remote existence check in Reserve plus the unique index on the
// remote store.
type Service struct {
	cache  StateCache
	oracle RemoteOracle
	cfg    Config
	now    func() time.Time

	mu        sync.Mutex
	companies map[string]*companyState
}

// NewService creates a reservation service.
func NewService(cache StateCache, oracle RemoteOracle, cfg Config, opts ...Option) *Service {
	if cfg.Floor < 0 {
		cfg.Floor = DefaultFloor
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	s := &Service{
		cache:     cache,
		oracle:    oracle,
		cfg:       cfg,
		now:       time.Now,
		companies: make(map[string]*companyState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) company(companyID string) *companyState {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.companies[companyID]
	if !ok {
		cs = &companyState{}
		s.companies[companyID] = cs
	}
	return cs
}

func (s *Service) stamp() time.Time {
	return s.now().UTC()
}

// Sync reconciles local state with the remote high-water mark and persists the
// result. It runs at most once per company per process unless force is set.
func (s *Service) Sync(ctx context.Context, companyID string, force bool) State {
	cs := s.company(companyID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return s.syncLocked(ctx, companyID, cs, force)
}

func (s *Service) syncLocked(ctx context.Context, companyID string, cs *companyState, force bool) State {
	if cs.synced && !force {
		return cs.current
	}

	base := s.cfg.Floor
	cached, err := s.cache.Read(ctx, companyID)
	if err != nil {
		logger.Warn(ctx, "sequence cache unreadable, starting from defaults",
			"company_id", companyID,
			"error", err,
		)
	} else if cached != nil && cached.LastSequence > base {
		base = cached.LastSequence
	}

	if remoteMax, ok := s.oracle.FetchHighestSequence(ctx, companyID); ok && remoteMax > base {
		base = remoteMax
	}

	st := State{LastSequence: base, LastUpdatedAt: s.stamp()}
	if err := s.cache.Write(ctx, companyID, st); err != nil {
		logger.Warn(ctx, "sequence cache write failed",
			"company_id", companyID,
			"error", err,
		)
	}

	// Outstanding reservations of this process may already be ahead of the
	// persisted state; a forced resync must not hand their numbers out again.
	if cs.synced && cs.current.LastSequence > st.LastSequence {
		st = cs.current
	}

	cs.current = st
	cs.synced = true

	logger.Debug(ctx, "sequence synchronized",
		"company_id", companyID,
		"last_sequence", st.LastSequence,
	)
	return st
}

// errTaken marks a candidate that already exists remotely.
var errTaken = errors.New("invoice number already taken")

// Reserve claims the next free invoice number for companyID.
//
// Candidates are tried in order starting right after the current head; each
// one is checked against the remote store. If MaxAttempts candidates are all
// taken the call fails with SEQUENCE_EXHAUSTED and the local state is left as
// it was. A failing existence check aborts the reservation.
func (s *Service) Reserve(ctx context.Context, companyID string) (ReservedInvoice, error) {
	cs := s.company(companyID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	prior := s.syncLocked(ctx, companyID, cs, false)
	issuedAt := s.stamp()

	res, err := retry.Do(ctx, retry.Immediate(s.cfg.MaxAttempts), func(ctx context.Context, attempt int) (ReservedInvoice, error) {
		seq := prior.LastSequence + int64(attempt)
		number := numerator.Format(s.cfg.Format, issuedAt, seq)

		exists, err := s.oracle.Exists(ctx, number, companyID)
		if err != nil {
			return ReservedInvoice{}, retry.Stop(err)
		}
		if exists {
			logger.Debug(ctx, "invoice number taken, trying next",
				"company_id", companyID,
				"invoice_number", number,
				"attempt", attempt,
			)
			return ReservedInvoice{}, fmt.Errorf("%s: %w", number, errTaken)
		}
		return ReservedInvoice{
			CompanyID:     companyID,
			InvoiceNumber: number,
			Sequence:      seq,
			PriorState:    prior,
		}, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, retry.ErrExhausted):
			logger.Error(ctx, "invoice sequence exhausted",
				"company_id", companyID,
				"from_sequence", prior.LastSequence,
				"attempts", s.cfg.MaxAttempts,
			)
			return ReservedInvoice{}, apperror.NewSequenceExhausted(companyID, s.cfg.MaxAttempts).WithCause(err)
		case failure.IsNetwork(err):
			return ReservedInvoice{}, apperror.NewNetworkFailure("invoice existence check", err)
		default:
			return ReservedInvoice{}, apperror.NewInternal(err)
		}
	}

	cs.current = State{LastSequence: res.Sequence, LastUpdatedAt: issuedAt}
	return res, nil
}

// Commit makes a reservation durable. The persisted sequence never moves
// backwards, so committing the same reservation twice is harmless. Cache
// write failures are logged and otherwise ignored.
func (s *Service) Commit(ctx context.Context, r ReservedInvoice) {
	cs := s.company(r.CompanyID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cached, err := s.cache.Read(ctx, r.CompanyID)
	if err == nil && cached != nil && cached.LastSequence >= r.Sequence {
		return
	}

	st := State{LastSequence: r.Sequence, LastUpdatedAt: s.stamp()}
	if cs.current.LastSequence < r.Sequence {
		cs.current = st
	}
	if err := s.cache.Write(ctx, r.CompanyID, st); err != nil {
		logger.Warn(ctx, "sequence cache write failed on commit",
			"company_id", r.CompanyID,
			"invoice_number", r.InvoiceNumber,
			"error", err,
		)
	}
}

// Revert releases a reservation that was never submitted. The prior state is
// restored only while the reservation is still the newest one; otherwise the
// number is left as a gap rather than risking reuse of a later reservation.
func (s *Service) Revert(ctx context.Context, r ReservedInvoice) {
	cs := s.company(r.CompanyID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.current.LastSequence != r.Sequence {
		logger.Warn(ctx, "reservation superseded, leaving sequence gap",
			"company_id", r.CompanyID,
			"invoice_number", r.InvoiceNumber,
			"head_sequence", cs.current.LastSequence,
		)
		return
	}

	cs.current = r.PriorState
	if err := s.cache.Write(ctx, r.CompanyID, r.PriorState); err != nil {
		logger.Warn(ctx, "sequence cache write failed on revert",
			"company_id", r.CompanyID,
			"invoice_number", r.InvoiceNumber,
			"error", err,
		)
	}
}

// Head returns the in-memory head for companyID and whether it was synced.
func (s *Service) Head(companyID string) (State, bool) {
	cs := s.company(companyID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.current, cs.synced
}
