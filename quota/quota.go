// Copyright 2025 Govex DAO
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package quota provides the default sponsor quota registry: each registered
// (DAO, sponsor) pair receives an allowance that refills on a rolling time
// window. Implements the engine's QuotaRegistry interface.
package quota

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotRegistered = errors.New("sponsor not registered")
	ErrNoQuota       = errors.New("no sponsor quota remaining")
)

type key struct {
	daoId   uuid.UUID
	sponsor string
}

type allowance struct {
	// used holds the timestamps of quota consumptions inside the window
	used        []time.Time
	perWindow   int
	windowStart time.Time
}

type RegistryConfig struct {
	// QuotaPerWindow is the default allowance granted on registration
	QuotaPerWindow int
	// Window is the rolling period over which consumptions expire
	Window time.Duration
	// Now permits tests to control time; defaults to time.Now
	Now func() time.Time
}

type Registry struct {
	config     RegistryConfig
	allowances map[key]*allowance
	now        func() time.Time
	mutex      sync.Mutex
}

func NewRegistry(config RegistryConfig) *Registry {
	r := &Registry{
		config:     config,
		allowances: make(map[key]*allowance),
		now:        config.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Register grants a sponsor an allowance with the registry default quota.
func (r *Registry) Register(daoId uuid.UUID, sponsor string) {
	r.RegisterWithQuota(daoId, sponsor, r.config.QuotaPerWindow)
}

// RegisterWithQuota grants a sponsor a specific per-window allowance.
func (r *Registry) RegisterWithQuota(
	daoId uuid.UUID,
	sponsor string,
	perWindow int,
) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.allowances[key{daoId: daoId, sponsor: sponsor}] = &allowance{
		perWindow: perWindow,
	}
}

// expire drops consumptions older than the rolling window.
func (r *Registry) expire(a *allowance) {
	if r.config.Window <= 0 {
		return
	}
	cutoff := r.now().Add(-r.config.Window)
	kept := a.used[:0]
	for _, at := range a.used {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	a.used = kept
}

// IsMember reports whether the sponsor is registered with the DAO at all.
func (r *Registry) IsMember(daoId uuid.UUID, sponsor string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.allowances[key{daoId: daoId, sponsor: sponsor}]
	return ok
}

// CheckSponsorQuota reports whether the sponsor can consume quota and how
// much remains in the current window.
func (r *Registry) CheckSponsorQuota(
	daoId uuid.UUID,
	sponsor string,
) (bool, int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	a, ok := r.allowances[key{daoId: daoId, sponsor: sponsor}]
	if !ok {
		return false, 0, nil
	}
	r.expire(a)
	remaining := a.perWindow - len(a.used)
	return remaining > 0, remaining, nil
}

// UseSponsorQuota consumes one unit of the sponsor's windowed quota.
func (r *Registry) UseSponsorQuota(daoId uuid.UUID, sponsor string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	a, ok := r.allowances[key{daoId: daoId, sponsor: sponsor}]
	if !ok {
		return fmt.Errorf("%w: %s for DAO %s", ErrNotRegistered, sponsor, daoId)
	}
	r.expire(a)
	if len(a.used) >= a.perWindow {
		return fmt.Errorf("%w: %s for DAO %s", ErrNoQuota, sponsor, daoId)
	}
	a.used = append(a.used, r.now())
	return nil
}

// RefundSponsorQuota returns the most recently consumed unit. A refund with
// nothing consumed is a no-op.
func (r *Registry) RefundSponsorQuota(daoId uuid.UUID, sponsor string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	a, ok := r.allowances[key{daoId: daoId, sponsor: sponsor}]
	if !ok {
		return fmt.Errorf("%w: %s for DAO %s", ErrNotRegistered, sponsor, daoId)
	}
	r.expire(a)
	if len(a.used) > 0 {
		a.used = a.used[:len(a.used)-1]
	}
	return nil
}
