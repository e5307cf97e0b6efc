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

// Package treasury tracks the two balances the resolution engine moves money
// between: per-proposal fee escrows (creator fees pending refund) and the
// shared protocol-revenue balance (keeper rewards, creator bonuses). Each
// balance is owned exclusively by the Vault; the only mutation surface is the
// methods below.
package treasury

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type InsufficientEscrowError struct {
	ProposalId uuid.UUID
	Requested  uint64
	Available  uint64
}

func (e *InsufficientEscrowError) Error() string {
	return fmt.Sprintf(
		"insufficient escrow for proposal %s: requested=%d available=%d",
		e.ProposalId,
		e.Requested,
		e.Available,
	)
}

type InsufficientRevenueError struct {
	Requested uint64
	Available uint64
}

func (e *InsufficientRevenueError) Error() string {
	return fmt.Sprintf(
		"insufficient protocol revenue: requested=%d available=%d",
		e.Requested,
		e.Available,
	)
}

type VaultConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
}

type Vault struct {
	config  VaultConfig
	metrics struct {
		escrowBalance  prometheus.Gauge
		revenueBalance prometheus.Gauge
		burnedTotal    prometheus.Counter
		payoutsTotal   prometheus.Counter
	}
	logger  *slog.Logger
	escrows map[uuid.UUID]uint64
	// paid tracks cumulative payouts per recipient address for observability
	paid    map[string]uint64
	revenue uint64
	burned  uint64
	mutex   sync.Mutex
}

func NewVault(config VaultConfig) *Vault {
	v := &Vault{
		config:  config,
		escrows: make(map[uuid.UUID]uint64),
		paid:    make(map[string]uint64),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		v.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		v.logger = config.Logger
	}
	promautoFactory := promauto.With(config.PromRegistry)
	v.metrics.escrowBalance = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "futarchy_treasury_escrow_balance",
		Help: "total stable asset held across all proposal fee escrows",
	})
	v.metrics.revenueBalance = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "futarchy_treasury_revenue_balance",
		Help: "current protocol revenue balance",
	})
	v.metrics.burnedTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "futarchy_treasury_burned_total",
		Help: "total stable asset burned from escrow remainders",
	})
	v.metrics.payoutsTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "futarchy_treasury_payouts_total",
		Help: "total stable asset paid out from escrow and revenue",
	})
	return v
}

// EscrowDeposit adds funds to a proposal's fee escrow.
func (v *Vault) EscrowDeposit(proposalId uuid.UUID, amount uint64) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.escrows[proposalId] += amount
	v.metrics.escrowBalance.Add(float64(amount))
}

// EscrowBalance returns the current escrow balance for a proposal.
func (v *Vault) EscrowBalance(proposalId uuid.UUID) uint64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.escrows[proposalId]
}

// RefundFromEscrow pays a creator refund out of a proposal's own escrow. The
// escrow must cover the full amount; callers implement best-effort skipping.
func (v *Vault) RefundFromEscrow(
	proposalId uuid.UUID,
	recipient string,
	amount uint64,
) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	available := v.escrows[proposalId]
	if amount > available {
		return &InsufficientEscrowError{
			ProposalId: proposalId,
			Requested:  amount,
			Available:  available,
		}
	}
	v.escrows[proposalId] = available - amount
	v.paid[recipient] += amount
	v.metrics.escrowBalance.Sub(float64(amount))
	v.metrics.payoutsTotal.Add(float64(amount))
	v.logger.Debug(
		"escrow refund",
		"component", "treasury",
		"proposal", proposalId.String(),
		"recipient", recipient,
		"amount", amount,
	)
	return nil
}

// BurnEscrowRemainder destroys whatever remains in a proposal's escrow and
// returns the burned amount. The escrow entry is removed entirely so no
// balance can linger after finalization.
func (v *Vault) BurnEscrowRemainder(proposalId uuid.UUID) uint64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	remainder := v.escrows[proposalId]
	delete(v.escrows, proposalId)
	if remainder > 0 {
		v.burned += remainder
		v.metrics.escrowBalance.Sub(float64(remainder))
		v.metrics.burnedTotal.Add(float64(remainder))
		v.logger.Debug(
			"escrow remainder burned",
			"component", "treasury",
			"proposal", proposalId.String(),
			"amount", remainder,
		)
	}
	return remainder
}

// ReleaseEscrowToDAO returns a proposal's escrow to the DAO (the
// winning-outcome-zero case where creator fees are retained) and returns the
// released amount.
func (v *Vault) ReleaseEscrowToDAO(proposalId uuid.UUID, daoAccount string) uint64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	remainder := v.escrows[proposalId]
	delete(v.escrows, proposalId)
	if remainder > 0 {
		v.paid[daoAccount] += remainder
		v.metrics.escrowBalance.Sub(float64(remainder))
		v.metrics.payoutsTotal.Add(float64(remainder))
	}
	return remainder
}

// DepositRevenue adds funds to the shared protocol-revenue balance.
func (v *Vault) DepositRevenue(amount uint64) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.revenue += amount
	v.metrics.revenueBalance.Add(float64(amount))
}

// RevenueBalance returns the current protocol-revenue balance.
func (v *Vault) RevenueBalance() uint64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.revenue
}

// PayFromRevenue pays a reward out of protocol revenue.
func (v *Vault) PayFromRevenue(recipient string, amount uint64) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if amount > v.revenue {
		return &InsufficientRevenueError{
			Requested: amount,
			Available: v.revenue,
		}
	}
	v.revenue -= amount
	v.paid[recipient] += amount
	v.metrics.revenueBalance.Sub(float64(amount))
	v.metrics.payoutsTotal.Add(float64(amount))
	v.logger.Debug(
		"revenue payout",
		"component", "treasury",
		"recipient", recipient,
		"amount", amount,
	)
	return nil
}

// PaidTo returns the cumulative amount paid to a recipient.
func (v *Vault) PaidTo(recipient string) uint64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.paid[recipient]
}

// BurnedTotal returns the cumulative amount burned.
func (v *Vault) BurnedTotal() uint64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.burned
}
