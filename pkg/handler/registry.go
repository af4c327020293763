package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/jobforge/jobforge/pkg/cache"
	"github.com/jobforge/jobforge/pkg/codec"
	"github.com/jobforge/jobforge/pkg/flags"
)

const validationMemoTTL = 30 * time.Second

// maxPayloadBytes caps a job payload's wire size when
// security_validation_enabled is on (spec §4.3).
const maxPayloadBytes = 256 * 1024

// Registry holds every registered job-type handler. Input validation
// results are memoized by canonical-hash key with a short TTL (spec §9
// "memoization") — the cache is an optimization, never the source of
// truth, so a cache miss always falls through to real validation.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]*Spec
	validate *validator.Validate
	memo     cache.Cache[bool]
	flags    *flags.Registry
	group    singleflight.Group
}

// NewRegistry builds an empty registry. memo may be nil to disable
// validation memoization entirely.
func NewRegistry(memo cache.Cache[bool], fl *flags.Registry) *Registry {
	return &Registry{
		specs:    make(map[string]*Spec),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		memo:     memo,
		flags:    fl,
	}
}

// Register adds a handler for Spec.Tag. Re-registering the same tag is
// permitted only when the input/output schema shapes are unchanged
// (ErrIncompatibleSchema otherwise).
func (r *Registry) Register(spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.specs[spec.Tag]; ok {
		if schemaType(existing.InputSchema) != schemaType(spec.InputSchema) ||
			schemaType(existing.OutputSchema) != schemaType(spec.OutputSchema) {
			return fmt.Errorf("%w: tag=%s", ErrIncompatibleSchema, spec.Tag)
		}
	}
	if spec.MaxAttempts == 0 {
		spec.MaxAttempts = 5
	}
	s := spec
	r.specs[spec.Tag] = &s
	return nil
}

// Lookup returns the handler registered for tag.
func (r *Registry) Lookup(tag string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[tag]
	return s, ok
}

// ValidateInput decodes payload into a fresh copy of the handler's
// InputSchema (when one is configured) and validates it, short-circuiting
// through a memoized result when the same tag+payload was already
// checked within the TTL window. Returns ErrBadInput on any schema
// mismatch or validation failure — terminal regardless of attempts
// remaining.
func (r *Registry) ValidateInput(ctx context.Context, tag string, payload []byte) error {
	spec, ok := r.Lookup(tag)
	if !ok {
		return ErrUnknownJobType
	}

	if r.flags != nil && r.flags.Enabled(flags.SecurityValidationEnabled) {
		if len(payload) > maxPayloadBytes {
			return fmt.Errorf("%w: payload exceeds %d bytes", ErrBadInput, maxPayloadBytes)
		}
		if !json.Valid(payload) {
			return fmt.Errorf("%w: payload is not valid JSON", ErrBadInput)
		}
	}

	if spec.InputSchema == nil {
		return nil
	}

	hash, _, err := codec.Hash(json.RawMessage(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	memoKey := tag + ":" + hash

	if r.memo != nil {
		if valid, err := r.memo.Get(ctx, memoKey); err == nil {
			if !valid {
				return ErrBadInput
			}
			return nil
		} else if !errors.Is(err, cache.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrBadInput, err)
		}
	}

	_, err, _ = r.group.Do(memoKey, func() (any, error) {
		return nil, r.validateNow(spec, payload)
	})

	if r.memo != nil {
		_ = r.memo.Set(ctx, memoKey, err == nil, validationMemoTTL)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	return nil
}

func (r *Registry) validateNow(spec *Spec, payload []byte) error {
	v := reflect.New(reflect.TypeOf(spec.InputSchema).Elem()).Interface()
	if err := json.Unmarshal(payload, v); err != nil {
		return err
	}
	return r.validate.Struct(v)
}
