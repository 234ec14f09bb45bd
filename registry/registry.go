// Package registry stores service records behind a swappable Store
// interface so the backing store can change without touching protocol logic.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// ErrNotFound is returned when a service identifier is unknown.
var ErrNotFound = errors.New("service not found")

// ErrInvalidDescriptor is returned when a registration input is malformed.
var ErrInvalidDescriptor = errors.New("invalid service descriptor")

// Defaults applied to registrations that omit optional descriptor fields.
const (
	DefaultPrice   = "0.001"
	DefaultNetwork = types.NetworkSepolia
)

// DefaultCapabilities are assigned to services registered without any.
var DefaultCapabilities = []string{"analyze"}

// Store is the service registry interface.
type Store interface {
	Register(ctx context.Context, d types.ServiceDescriptor) (types.ServiceRecord, error)
	Get(ctx context.Context, id string) (types.ServiceRecord, error)
	List(ctx context.Context) ([]types.ServiceRecord, error)
	RecordCall(ctx context.Context, id string, earned string) error
	Deactivate(ctx context.Context, id string) error
}

// MemoryStore is an in-memory registry. Reads take the read lock; the
// write lock serializes counter updates so concurrent RecordCall invocations
// for the same service never lose updates.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*types.ServiceRecord
	order   []string

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*types.ServiceRecord),
		now:     time.Now,
	}
}

// Register validates the descriptor, applies defaults and upserts the
// record. Re-registration replaces descriptor fields but preserves the
// original registration time, call count and earnings.
func (s *MemoryStore) Register(ctx context.Context, d types.ServiceDescriptor) (types.ServiceRecord, error) {

	// Validate and normalize the descriptor before touching the map
	d, err := normalizeDescriptor(d)
	if err != nil {
		return types.ServiceRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := types.ServiceRecord{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		Endpoint:     d.Endpoint,
		Network:      d.Network,
		Price:        d.Price,
		PayTo:        d.PayTo,
		Capabilities: d.Capabilities,
		Status:       types.ServiceStatusActive,
		RegisteredAt: s.now().UTC(),
		Earned:       "0",
	}

	// Upsert: carry forward counters of an existing record
	if prev, ok := s.records[d.ID]; ok {
		record.RegisteredAt = prev.RegisteredAt
		record.Calls = prev.Calls
		record.Earned = prev.Earned
	} else {
		s.order = append(s.order, d.ID)
	}

	s.records[d.ID] = &record
	return record, nil
}

// Get returns the record for the identifier or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (types.ServiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return types.ServiceRecord{}, ErrNotFound
	}
	return *record, nil
}

// List returns all records in registration order.
func (s *MemoryStore) List(ctx context.Context) ([]types.ServiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]types.ServiceRecord, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, *s.records[id])
	}
	return records, nil
}

// RecordCall increments the call counter and adds the earned amount.
func (s *MemoryStore) RecordCall(ctx context.Context, id string, earned string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}

	total, err := addDecimal(record.Earned, earned)
	if err != nil {
		return err
	}

	record.Calls++
	record.Earned = total
	return nil
}

// Deactivate marks the service inactive. Quote and invoke treat an
// inactive service the same as an unknown one.
func (s *MemoryStore) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	record.Status = types.ServiceStatusInactive
	return nil
}

// normalizeDescriptor validates required fields and fills defaults.
func normalizeDescriptor(d types.ServiceDescriptor) (types.ServiceDescriptor, error) {

	// Identifier and endpoint are mandatory
	if d.ID == "" || d.Endpoint == "" {
		return d, ErrInvalidDescriptor
	}

	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Price == "" {
		d.Price = DefaultPrice
	}
	if d.Network == "" {
		d.Network = DefaultNetwork
	}
	if len(d.Capabilities) == 0 {
		d.Capabilities = append([]string(nil), DefaultCapabilities...)
	}

	// Reject prices that do not parse as a non-negative decimal
	rat, ok := new(big.Rat).SetString(d.Price)
	if !ok || rat.Sign() < 0 {
		return d, fmt.Errorf("%w: bad price %q", ErrInvalidDescriptor, d.Price)
	}

	return d, nil
}

// addDecimal adds two decimal strings exactly.
func addDecimal(a, b string) (string, error) {
	ra, ok := new(big.Rat).SetString(a)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", a)
	}
	rb, ok := new(big.Rat).SetString(b)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", b)
	}
	sum := new(big.Rat).Add(ra, rb)

	// Render without a trailing fractional part when the sum is integral
	if sum.IsInt() {
		return sum.Num().String(), nil
	}
	return trimZeros(sum.FloatString(18)), nil
}

// trimZeros drops trailing zeros from a fixed-point decimal string.
func trimZeros(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}
