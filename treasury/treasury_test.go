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

package treasury_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/govex-dao/futarchy/treasury"
)

func TestEscrowRefundAndBurn(t *testing.T) {
	v := treasury.NewVault(treasury.VaultConfig{})
	pid := uuid.New()
	v.EscrowDeposit(pid, 100)
	require.Equal(t, uint64(100), v.EscrowBalance(pid))

	require.NoError(t, v.RefundFromEscrow(pid, "creator1", 40))
	require.NoError(t, v.RefundFromEscrow(pid, "creator2", 40))
	require.Equal(t, uint64(20), v.EscrowBalance(pid))

	burned := v.BurnEscrowRemainder(pid)
	require.Equal(t, uint64(20), burned)
	require.Equal(t, uint64(0), v.EscrowBalance(pid))
	require.Equal(t, uint64(20), v.BurnedTotal())

	// Refunds plus burn equal the starting escrow exactly
	require.Equal(t, uint64(100), v.PaidTo("creator1")+v.PaidTo("creator2")+burned)
}

func TestEscrowPartialFillProtection(t *testing.T) {
	v := treasury.NewVault(treasury.VaultConfig{})
	pid := uuid.New()
	v.EscrowDeposit(pid, 30)
	err := v.RefundFromEscrow(pid, "creator1", 40)
	var escrowErr *treasury.InsufficientEscrowError
	require.True(t, errors.As(err, &escrowErr))
	require.Equal(t, uint64(40), escrowErr.Requested)
	require.Equal(t, uint64(30), escrowErr.Available)
	// Failed refund must not touch the balance
	require.Equal(t, uint64(30), v.EscrowBalance(pid))
}

func TestRevenuePayouts(t *testing.T) {
	v := treasury.NewVault(treasury.VaultConfig{})
	v.DepositRevenue(1000)
	require.NoError(t, v.PayFromRevenue("keeper", 100))
	require.Equal(t, uint64(900), v.RevenueBalance())
	require.Equal(t, uint64(100), v.PaidTo("keeper"))

	err := v.PayFromRevenue("keeper", 5000)
	var revErr *treasury.InsufficientRevenueError
	require.True(t, errors.As(err, &revErr))
	require.Equal(t, uint64(900), v.RevenueBalance())
}

func TestReleaseEscrowToDAO(t *testing.T) {
	v := treasury.NewVault(treasury.VaultConfig{})
	pid := uuid.New()
	v.EscrowDeposit(pid, 75)
	released := v.ReleaseEscrowToDAO(pid, "dao-treasury")
	require.Equal(t, uint64(75), released)
	require.Equal(t, uint64(75), v.PaidTo("dao-treasury"))
	require.Equal(t, uint64(0), v.EscrowBalance(pid))
}
