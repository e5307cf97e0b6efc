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

package proposal

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/govex-dao/futarchy/config/dao"
	"github.com/govex-dao/futarchy/event"
	"github.com/govex-dao/futarchy/treasury"
)

type ManagerConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Oracle       MarketOracle
	Liquidity    LiquidityCoordinator
	Executor     ActionExecutor
	Quota        QuotaRegistry
	Vault        *treasury.Vault
	Clock        Clock
	Store        Store
}

// Manager owns every proposal aggregate and is the only mutation surface for
// them. Operations are serialized per manager; each exported call is a single
// atomic state transition.
type Manager struct {
	config  ManagerConfig
	metrics struct {
		proposalsCreated   prometheus.Counter
		proposalsFinalized prometheus.Counter
		earlyResolutions   prometheus.Counter
		sponsorships       prometheus.Counter
		openProposals      prometheus.Gauge
	}
	logger    *slog.Logger
	eventBus  *event.EventBus
	clock     Clock
	proposals map[uuid.UUID]*Proposal
	daos      map[uuid.UUID]*dao.Config
	sync.RWMutex
}

func NewManager(config ManagerConfig) *Manager {
	m := &Manager{
		config:    config,
		eventBus:  config.EventBus,
		clock:     config.Clock,
		proposals: make(map[uuid.UUID]*Proposal),
		daos:      make(map[uuid.UUID]*dao.Config),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		m.logger = config.Logger
	}
	if m.clock == nil {
		m.clock = SystemClock{}
	}
	promautoFactory := promauto.With(config.PromRegistry)
	m.metrics.proposalsCreated = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "futarchy_proposals_created_total",
			Help: "total proposals created",
		},
	)
	m.metrics.proposalsFinalized = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "futarchy_proposals_finalized_total",
			Help: "total proposals finalized",
		},
	)
	m.metrics.earlyResolutions = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "futarchy_early_resolutions_total",
			Help: "total proposals finalized via the early-resolution path",
		},
	)
	m.metrics.sponsorships = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "futarchy_sponsorships_total",
			Help: "total sponsorships applied to proposals",
		},
	)
	m.metrics.openProposals = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "futarchy_open_proposals",
		Help: "current count of proposals not yet finalized",
	})
	return m
}

// RegisterDAO makes a DAO's governance parameters available to proposals
// that reference it.
func (m *Manager) RegisterDAO(daoId uuid.UUID, cfg *dao.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	m.daos[daoId] = cfg
	return nil
}

// daoConfig looks up DAO parameters; callers must hold the lock.
func (m *Manager) daoConfig(daoId uuid.UUID) (*dao.Config, error) {
	cfg, ok := m.daos[daoId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDAO, daoId)
	}
	return cfg, nil
}

// CreateParams describes a new proposal. Outcome index 0 must be the
// "no action" outcome; its creator fee is conventionally zero.
type CreateParams struct {
	DaoId                uuid.UUID
	Proposer             string
	OutcomeMessages      []string
	OutcomeCreators      []string
	OutcomeCreatorFees   []uint64
	Actions              []*ActionBundle
	Twap                 TwapConfig
	ReviewPeriodMs       int64
	TradingPeriodMs      int64
	UsedQuota            bool
	FundedByDAOLiquidity bool
}

// Create registers a new proposal in PREMARKET. Creator fees are moved into
// the proposal's fee escrow.
func (m *Manager) Create(params CreateParams) (uuid.UUID, error) {
	m.Lock()
	defer m.Unlock()
	daoCfg, err := m.daoConfig(params.DaoId)
	if err != nil {
		return uuid.Nil, err
	}
	outcomeCount := len(params.OutcomeMessages)
	if outcomeCount < 1 {
		return uuid.Nil, ErrTooFewOutcomes
	}
	if len(params.OutcomeCreators) != outcomeCount ||
		len(params.OutcomeCreatorFees) != outcomeCount ||
		(params.Actions != nil && len(params.Actions) != outcomeCount) {
		return uuid.Nil, fmt.Errorf(
			"outcome array length mismatch: %d messages, %d creators, %d fees",
			outcomeCount,
			len(params.OutcomeCreators),
			len(params.OutcomeCreatorFees),
		)
	}
	reviewPeriod := params.ReviewPeriodMs
	if reviewPeriod == 0 {
		reviewPeriod = daoCfg.ReviewPeriodMs
	}
	tradingPeriod := params.TradingPeriodMs
	if tradingPeriod == 0 {
		tradingPeriod = daoCfg.TradingPeriodMs
	}
	twapCfg := params.Twap
	if twapCfg.StartDelayMs == 0 {
		twapCfg.StartDelayMs = daoCfg.TwapStartDelayMs
	}
	p := &Proposal{
		Id:                   uuid.New(),
		DaoId:                params.DaoId,
		State:                StatePremarket,
		Proposer:             params.Proposer,
		CreatedAtMs:          m.clock.NowMs(),
		ReviewPeriodMs:       reviewPeriod,
		TradingPeriodMs:      tradingPeriod,
		Twap:                 twapCfg,
		UsedQuota:            params.UsedQuota,
		FundedByDAOLiquidity: params.FundedByDAOLiquidity,
	}
	for i := range outcomeCount {
		var actions *ActionBundle
		if params.Actions != nil {
			actions = params.Actions[i]
		}
		if err := p.addOutcome(
			params.OutcomeMessages[i],
			params.OutcomeCreators[i],
			params.OutcomeCreatorFees[i],
			actions,
		); err != nil {
			return uuid.Nil, err
		}
	}
	if m.config.Vault != nil && p.FeeEscrowBalance > 0 {
		m.config.Vault.EscrowDeposit(p.Id, p.FeeEscrowBalance)
	}
	if m.config.Store != nil {
		for i, actions := range params.Actions {
			if actions == nil {
				continue
			}
			if err := m.config.Store.PutActionBundle(p.Id, i, actions.Payload); err != nil {
				return uuid.Nil, err
			}
		}
	}
	if err := m.persist(p); err != nil {
		return uuid.Nil, err
	}
	m.proposals[p.Id] = p
	m.metrics.proposalsCreated.Inc()
	m.metrics.openProposals.Inc()
	m.logger.Info(
		"proposal created",
		"component", "proposal",
		"proposal", p.Id.String(),
		"dao", p.DaoId.String(),
		"outcomes", p.OutcomeCount,
	)
	if m.eventBus != nil {
		m.eventBus.Publish(
			CreatedEventType,
			event.NewEvent(CreatedEventType, CreatedEvent{
				ProposalId:   p.Id,
				DaoId:        p.DaoId,
				Proposer:     p.Proposer,
				OutcomeCount: p.OutcomeCount,
			}),
		)
	}
	return p.Id, nil
}

// AddOutcome appends an outcome to a PREMARKET proposal. The creator fee is
// escrowed; the action bundle, if any, fills the new outcome's slot.
func (m *Manager) AddOutcome(
	proposalId uuid.UUID,
	message string,
	creator string,
	fee uint64,
	actions *ActionBundle,
) error {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return err
	}
	if err := p.addOutcome(message, creator, fee, actions); err != nil {
		return err
	}
	if m.config.Vault != nil && fee > 0 {
		m.config.Vault.EscrowDeposit(p.Id, fee)
	}
	if m.config.Store != nil && actions != nil {
		if err := m.config.Store.PutActionBundle(
			p.Id,
			p.OutcomeCount-1,
			actions.Payload,
		); err != nil {
			return err
		}
	}
	return m.persist(p)
}

// AttachMarket is the external "market attach" operation: it moves a
// PREMARKET proposal to REVIEW and anchors all time-driven transitions to
// now. Not time-driven itself.
func (m *Manager) AttachMarket(proposalId uuid.UUID) error {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return err
	}
	if p.State != StatePremarket {
		return &InvalidStateError{
			ProposalId: p.Id,
			State:      p.State,
			Operation:  "attach market",
		}
	}
	if p.OutcomeCount < 2 {
		return ErrTooFewOutcomes
	}
	if m.config.Oracle != nil {
		if err := m.config.Oracle.CreateMarket(
			p.Id,
			p.OutcomeCount,
			p.Twap.InitialObservation,
			p.Twap.StepMax,
		); err != nil {
			return fmt.Errorf(
				"creating market for proposal %s: %w",
				p.Id,
				err,
			)
		}
	}
	p.MarketInitializedAtMs = m.clock.NowMs()
	m.transition(p, StateReview)
	return m.persist(p)
}

// get looks up a proposal; callers must hold the lock.
func (m *Manager) get(proposalId uuid.UUID) (*Proposal, error) {
	p, ok := m.proposals[proposalId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProposalNotFound, proposalId)
	}
	return p, nil
}

// transition advances the lifecycle state; callers must hold the lock and
// must never move backward.
func (m *Manager) transition(p *Proposal, newState State) {
	oldState := p.State
	p.State = newState
	m.logger.Info(
		"proposal state change",
		"component", "proposal",
		"proposal", p.Id.String(),
		"old_state", oldState.String(),
		"new_state", newState.String(),
	)
	if m.eventBus != nil {
		m.eventBus.Publish(
			StateChangeEventType,
			event.NewEvent(StateChangeEventType, StateChangeEvent{
				ProposalId: p.Id,
				OldState:   oldState,
				NewState:   newState,
			}),
		)
	}
}

func (m *Manager) persist(p *Proposal) error {
	if m.config.Store == nil {
		return nil
	}
	if err := m.config.Store.SaveProposal(p); err != nil {
		return fmt.Errorf("persisting proposal %s: %w", p.Id, err)
	}
	return nil
}

// StateOf returns a proposal's current lifecycle state.
func (m *Manager) StateOf(proposalId uuid.UUID) (State, error) {
	m.RLock()
	defer m.RUnlock()
	p, err := m.get(proposalId)
	if err != nil {
		return 0, err
	}
	return p.State, nil
}

// TwapPricesOf returns the finalization TWAPs; empty until finalized.
func (m *Manager) TwapPricesOf(proposalId uuid.UUID) ([]uint64, error) {
	m.RLock()
	defer m.RUnlock()
	p, err := m.get(proposalId)
	if err != nil {
		return nil, err
	}
	prices := make([]uint64, len(p.TwapPrices))
	copy(prices, p.TwapPrices)
	return prices, nil
}

// WinningOutcomeOf returns the winning outcome index after finalization.
func (m *Manager) WinningOutcomeOf(proposalId uuid.UUID) (int, error) {
	m.RLock()
	defer m.RUnlock()
	p, err := m.get(proposalId)
	if err != nil {
		return 0, err
	}
	if p.WinningOutcome == nil {
		return 0, ErrWinnerNotDetermined
	}
	return *p.WinningOutcome, nil
}

// HasPendingAction reports whether an outcome's action slot is populated.
func (m *Manager) HasPendingAction(
	proposalId uuid.UUID,
	outcomeIndex int,
) (bool, error) {
	m.RLock()
	defer m.RUnlock()
	p, err := m.get(proposalId)
	if err != nil {
		return false, err
	}
	return p.HasPendingAction(outcomeIndex), nil
}

// OpenProposalIds returns the ids of all proposals not yet finalized. Used
// by the keeper to drive time-based transitions.
func (m *Manager) OpenProposalIds() []uuid.UUID {
	m.RLock()
	defer m.RUnlock()
	ids := make([]uuid.UUID, 0, len(m.proposals))
	for id, p := range m.proposals {
		if p.State != StateFinalized {
			ids = append(ids, id)
		}
	}
	return ids
}

// TakeWinningAction hands the winning outcome's action bundle to the action
// executor, consuming the slot. Only legal after finalization, and only once.
func (m *Manager) TakeWinningAction(
	proposalId uuid.UUID,
) (CancelTicket, *ActionBundle, error) {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return CancelTicket{}, nil, err
	}
	if p.State != StateFinalized || p.WinningOutcome == nil {
		return CancelTicket{}, nil, &InvalidStateError{
			ProposalId: p.Id,
			State:      p.State,
			Operation:  "take winning action",
		}
	}
	ticket, bundle, err := p.takePendingAction(*p.WinningOutcome)
	if err != nil {
		return CancelTicket{}, nil, err
	}
	if m.config.Store != nil {
		if err := m.config.Store.DeleteActionBundle(
			ticket.ProposalId(),
			ticket.OutcomeIndex(),
		); err != nil {
			return CancelTicket{}, nil, err
		}
	}
	if err := m.persist(p); err != nil {
		return CancelTicket{}, nil, err
	}
	return ticket, bundle, nil
}

// ExecuteWinningAction takes the winning bundle and hands it to the
// configured executor in one step. The slot is consumed even when the
// executor fails; execution retries are the executor's concern.
func (m *Manager) ExecuteWinningAction(proposalId uuid.UUID) error {
	if m.config.Executor == nil {
		return fmt.Errorf("proposal %s: no action executor configured", proposalId)
	}
	ticket, bundle, err := m.TakeWinningAction(proposalId)
	if err != nil {
		return err
	}
	if err := m.config.Executor.ExecuteActions(ticket, bundle); err != nil {
		return fmt.Errorf(
			"executing actions for proposal %s outcome %d: %w",
			ticket.ProposalId(),
			ticket.OutcomeIndex(),
			err,
		)
	}
	return nil
}

// Remove is the explicit administrative/test teardown path. Proposals are
// never destroyed implicitly.
func (m *Manager) Remove(proposalId uuid.UUID) error {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return err
	}
	if m.config.Store != nil {
		if err := m.config.Store.DeleteProposal(proposalId); err != nil {
			return err
		}
	}
	delete(m.proposals, proposalId)
	if p.State != StateFinalized {
		m.metrics.openProposals.Dec()
	}
	return nil
}
