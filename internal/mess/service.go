package mess

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"canteen/internal/slot"
)

var (
	// ErrMissingData is returned when a scan lacks its token or member id.
	ErrMissingData = errors.New("missing data")
	// ErrMissingFields is returned when a member or menu item lacks required fields.
	ErrMissingFields = errors.New("missing fields")
	// ErrUnknownSlot is returned for allowed_slots naming a slot that does not exist.
	ErrUnknownSlot = errors.New("unknown slot")
	// ErrDuplicateRoll is returned when a roll number is already registered.
	ErrDuplicateRoll = errors.New("roll number already registered")
)

// TokenCache remembers the slot-wide token of a slot-day. Get returns "" on a miss.
type TokenCache interface {
	Get(ctx context.Context, slotName, day string) (string, error)
	Set(ctx context.Context, slotName, day, token string, ttl time.Duration) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, string) (string, error)              { return "", nil }
func (nopCache) Set(context.Context, string, string, string, time.Duration) error { return nil }

// Service coordinates token issuing, scan validation, usage accounting and
// the monthly reset.
type Service struct {
	repo  *Repository
	slots *slot.Resolver
	cache TokenCache
	clock func() time.Time
	loc   *time.Location
	log   *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLocation sets the timezone used for slot and date math.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithTokenCache enables caching of slot-wide tokens.
func WithTokenCache(c TokenCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, slots *slot.Resolver, opts ...Option) *Service {
	if slots == nil {
		slots = slot.Default()
	}
	s := &Service{
		repo:  repo,
		slots: slots,
		cache: nopCache{},
		clock: time.Now,
		loc:   time.Local,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock in the configured location.
func (s *Service) Now() time.Time {
	return s.clock().In(s.loc)
}

// Today is the current calendar date as stored in the database.
func (s *Service) Today() string {
	return s.Now().Format(DateLayout)
}

// CurrentSlot is the meal slot for the service clock.
func (s *Service) CurrentSlot() string {
	return s.slots.Resolve(s.Now())
}

// untilMidnight is how long today's tokens stay valid.
func (s *Service) untilMidnight() time.Duration {
	now := s.Now()
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
	if ttl := next.Sub(now); ttl > time.Minute {
		return ttl
	}
	return time.Minute
}
