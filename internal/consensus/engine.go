// Package consensus implements the Consensus Engine: it drives registered
// agents through rounds of opinion collection and voting, applies one of
// several voting algorithms to decide an outcome, and persists both the
// decision and the audit trail of how it was reached. Active processes are
// tracked in memory, the way the agentic core this fabric descends from
// kept its consensus state in live maps guarded by a single mutex; every
// state transition is mirrored to the store so a restart never loses a
// decided outcome.
package consensus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compliancefabric/coordinator/internal/clock"
	"github.com/compliancefabric/coordinator/internal/db"
	"github.com/compliancefabric/coordinator/internal/errs"
)

const (
	defaultMaxRounds       = 3
	defaultTimeoutPerRound = 2 * time.Minute
	defaultThreshold       = 0.5
	defaultMinParticipants = 1
)

// round is the in-memory bookkeeping for one voting round: the store round
// id, its sequence number, and the deadline beyond which any access should
// observe it as timed out.
type round struct {
	id        string
	number    int
	openedAt  time.Time
	timeoutAt time.Time
	voted     map[string]bool
}

// process is the live, in-memory state of one consensus process. The store
// holds the durable record; this struct is the working set the engine
// mutates while the process is active.
type process struct {
	mu       sync.Mutex
	id       string
	configID string
	cfg      Config
	state    State
	rounds   []*round
	createdAt time.Time
}

func (p *process) currentRound() *round {
	if len(p.rounds) == 0 {
		return nil
	}
	return p.rounds[len(p.rounds)-1]
}

// Engine coordinates consensus processes across their full lifecycle.
type Engine struct {
	store *db.DB
	clock clock.Clock
	log   zerolog.Logger

	mu         sync.RWMutex
	processes  map[string]*process
	completed  map[string]*Result
}

// New constructs a consensus Engine backed by store.
func New(store *db.DB, c clock.Clock, log zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		clock:     c,
		log:       log.With().Str("component", "consensus").Logger(),
		processes: make(map[string]*process),
		completed: make(map[string]*Result),
	}
}

func marshalParticipants(participants []string) json.RawMessage {
	b, err := json.Marshal(participants)
	if err != nil {
		return nil
	}
	return b
}

// Initiate starts a new consensus process: it validates the config,
// persists a consensus_configs row, opens the first voting round, and
// begins tracking the process in memory in COLLECTING_OPINIONS state.
func (e *Engine) Initiate(ctx context.Context, cfg Config) (string, error) {
	if cfg.Topic == "" {
		return "", errs.NewValidationError("topic must not be empty")
	}
	if len(cfg.Participants) == 0 {
		return "", errs.NewValidationError("participants must not be empty")
	}
	if cfg.ConsensusThreshold < 0 || cfg.ConsensusThreshold > 1 {
		return "", errs.NewValidationError("threshold must be between 0 and 1")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.TimeoutPerRound <= 0 {
		cfg.TimeoutPerRound = defaultTimeoutPerRound
	}
	if cfg.ConsensusThreshold == 0 {
		cfg.ConsensusThreshold = defaultThreshold
	}
	if cfg.MinParticipants <= 0 {
		cfg.MinParticipants = defaultMinParticipants
	}

	id := uuid.New().String()
	threshold := cfg.ConsensusThreshold
	row := &db.ConsensusConfigRow{
		ID:              id,
		Name:            cfg.Topic,
		Topic:           cfg.Topic,
		Algorithm:       db.VotingAlgorithm(cfg.Algorithm),
		Participants:    marshalParticipants(cfg.Participants),
		MinParticipants: cfg.MinParticipants,
		MaxRounds:       cfg.MaxRounds,
		Threshold:       &threshold,
		TimeoutSeconds:  int(cfg.TimeoutPerRound.Seconds()),
	}
	if err := e.store.CreateConsensusConfig(ctx, row); err != nil {
		return "", err
	}

	now := e.clock.Now()
	closesAt := now.Add(cfg.TimeoutPerRound)
	r := &db.VotingRound{ID: uuid.New().String(), ConfigID: id, Topic: cfg.Topic, ClosesAt: &closesAt}
	if err := e.store.OpenVotingRound(ctx, r); err != nil {
		return "", err
	}

	proc := &process{
		id:        id,
		configID:  id,
		cfg:       cfg,
		state:     StateCollectingOpinions,
		createdAt: now,
		rounds: []*round{{
			id: r.ID, number: 1, openedAt: now, timeoutAt: closesAt, voted: map[string]bool{},
		}},
	}

	e.mu.Lock()
	e.processes[id] = proc
	e.mu.Unlock()

	e.recordAudit(ctx, r.ID, "INITIATED", map[string]interface{}{"topic": cfg.Topic, "algorithm": cfg.Algorithm})
	e.log.Info().Str("consensus_id", id).Str("topic", cfg.Topic).Msg("consensus process initiated")
	return id, nil
}

func (e *Engine) getProcess(id string) (*process, error) {
	e.mu.RLock()
	proc, ok := e.processes[id]
	e.mu.RUnlock()
	if !ok {
		return nil, errs.NewNotFoundError("consensus process not found: " + id)
	}
	return proc, nil
}

// checkTimeout transitions proc to TIMEOUT if its current round's deadline
// has passed. Must be called with proc.mu held.
func (e *Engine) checkTimeout(proc *process) bool {
	r := proc.currentRound()
	if r == nil || proc.state == StateTimeout {
		return proc.state == StateTimeout
	}
	if e.clock.Now().After(r.timeoutAt) {
		proc.state = StateTimeout
		return true
	}
	return false
}

func (e *Engine) recordAudit(ctx context.Context, roundID, eventType string, detail map[string]interface{}) {
	b, err := json.Marshal(detail)
	if err != nil {
		b = nil
	}
	if err := e.store.RecordAuditEvent(ctx, roundID, eventType, b); err != nil {
		e.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to record consensus audit event")
	}
}

// SubmitOpinion records agentID's vote in the process's current round. A
// second submission from the same agent within the same round replaces the
// first.
func (e *Engine) SubmitOpinion(ctx context.Context, id string, op Opinion) error {
	proc, err := e.getProcess(id)
	if err != nil {
		return err
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()

	if e.checkTimeout(proc) {
		return errs.NewTimeoutError("round timeout")
	}
	if op.Decision == "" {
		return errs.NewValidationError("decision must not be empty")
	}
	if op.Confidence < 0 || op.Confidence > 1 {
		return errs.NewValidationError("confidence must be between 0 and 1")
	}

	r := proc.currentRound()
	supporting, _ := json.Marshal(op.SupportingData)
	concerns, _ := json.Marshal(op.Concerns)
	o := &db.AgentOpinion{
		RoundID: r.id, AgentID: op.AgentID, Choice: op.Decision, Confidence: op.Confidence,
		Rationale: op.Rationale, SupportingData: supporting, Concerns: concerns,
	}

	if r.voted[op.AgentID] {
		if err := e.store.UpdateOpinion(ctx, o); err != nil {
			return err
		}
	} else {
		if err := e.store.SubmitOpinion(ctx, o); err != nil {
			return err
		}
		r.voted[op.AgentID] = true
	}
	return nil
}

// UpdateOpinion explicitly replaces agentID's vote within the current
// round. It shares SubmitOpinion's insert-or-replace logic: an agent with
// no existing vote in the round gets one recorded rather than erroring.
func (e *Engine) UpdateOpinion(ctx context.Context, id, agentID string, op Opinion) error {
	op.AgentID = agentID
	return e.SubmitOpinion(ctx, id, op)
}

// GetOpinions returns the opinions cast in a process, either the latest
// round (roundNumber <= 0) or a specific historical round.
func (e *Engine) GetOpinions(ctx context.Context, id string, roundNumber int) ([]*db.AgentOpinion, error) {
	proc, err := e.getProcess(id)
	if err != nil {
		return nil, err
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()

	target := proc.currentRound()
	if roundNumber > 0 {
		target = nil
		for _, r := range proc.rounds {
			if r.number == roundNumber {
				target = r
				break
			}
		}
		if target == nil {
			return nil, errs.NewNotFoundError("round not found")
		}
	}
	return e.store.ListOpinions(ctx, target.id)
}

// StartVotingRound closes the process's current round and opens a fresh
// one, advancing the round counter. Used when an earlier round ended
// without consensus but further discussion is warranted.
func (e *Engine) StartVotingRound(ctx context.Context, id string) error {
	proc, err := e.getProcess(id)
	if err != nil {
		return err
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()

	if err := e.closeCurrentRoundLocked(ctx, proc); err != nil {
		return err
	}

	now := e.clock.Now()
	closesAt := now.Add(proc.cfg.TimeoutPerRound)
	newRound := &db.VotingRound{ID: uuid.New().String(), ConfigID: proc.configID, Topic: proc.cfg.Topic, ClosesAt: &closesAt}
	if err := e.store.OpenVotingRound(ctx, newRound); err != nil {
		return err
	}
	proc.rounds = append(proc.rounds, &round{
		id: newRound.ID, number: len(proc.rounds) + 1, openedAt: now, timeoutAt: closesAt, voted: map[string]bool{},
	})
	proc.state = StateCollectingOpinions

	e.recordAudit(ctx, newRound.ID, "ROUND_STARTED", map[string]interface{}{"round_number": len(proc.rounds)})
	return nil
}

// EndVotingRound closes the process's current round and tallies the votes
// cast in it, without opening a new one. Typically called immediately
// before CalculateConsensus.
func (e *Engine) EndVotingRound(ctx context.Context, id string) error {
	proc, err := e.getProcess(id)
	if err != nil {
		return err
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()

	r := proc.currentRound()
	opinions, err := e.store.ListOpinions(ctx, r.id)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	for _, o := range opinions {
		counts[o.Choice]++
	}
	if err := e.closeCurrentRoundLocked(ctx, proc); err != nil {
		return err
	}
	proc.state = StateVoting
	e.recordAudit(ctx, r.id, "ROUND_ENDED", map[string]interface{}{"vote_counts": counts})
	return nil
}

func (e *Engine) closeCurrentRoundLocked(ctx context.Context, proc *process) error {
	r := proc.currentRound()
	if r == nil {
		return errs.NewFatalError("process has no active round", nil)
	}
	return e.store.CloseVotingRound(ctx, r.id, e.clock.Now())
}

// CalculateConsensus runs the process's configured voting algorithm over
// its current round's opinions, persists the outcome, updates every
// participant's performance record, records the terminal audit event, and
// retires the process from the active set.
func (e *Engine) CalculateConsensus(ctx context.Context, id string) (*Result, error) {
	proc, err := e.getProcess(id)
	if err != nil {
		return nil, err
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()

	r := proc.currentRound()

	if e.checkTimeout(proc) {
		result := &Result{
			ConsensusID: id, Topic: proc.cfg.Topic, Algorithm: proc.cfg.Algorithm,
			FinalState: StateTimeout, RoundsUsed: r.number, ErrorMessage: "round timeout",
			CompletedAt: e.clock.Now(),
		}
		e.retire(ctx, proc, r, result, nil)
		return result, nil
	}

	opinions, err := e.store.ListOpinions(ctx, r.id)
	if err != nil {
		return nil, err
	}

	weights := map[string]float64{}
	for _, o := range opinions {
		if _, ok := weights[o.AgentID]; ok {
			continue
		}
		if agent, err := e.store.GetAgent(ctx, o.AgentID); err == nil {
			weights[o.AgentID] = agent.VotingWeight
		}
	}

	threshold := proc.cfg.ConsensusThreshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	out, confidence := runAlgorithm(db.VotingAlgorithm(proc.cfg.Algorithm), opinions, weights, len(proc.cfg.Participants), threshold)

	if r.number > 2 {
		confidence = dropOneTier(confidence)
	}

	finalState := StateReachedConsensus
	if !out.success {
		finalState = StateDeadlock
	}

	var dissenting []string
	for _, o := range opinions {
		if o.Choice != out.decision {
			dissenting = append(dissenting, o.AgentID)
		}
	}

	result := &Result{
		ConsensusID:         id,
		Topic:               proc.cfg.Topic,
		FinalDecision:       out.decision,
		ConfidenceLevel:     confidence,
		Algorithm:           proc.cfg.Algorithm,
		FinalState:          finalState,
		RoundsUsed:          r.number,
		TotalParticipants:   len(opinions),
		AgreementPercentage: out.agreement,
		ErrorMessage:        out.reason,
		DissentingOpinions:  dissenting,
		CompletedAt:         e.clock.Now(),
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"confidence_level": confidence,
		"rounds_used":      r.number,
		"dissenting":       dissenting,
	})
	resultRow := &db.ConsensusResultRow{
		ID: uuid.New().String(), RoundID: r.id, Outcome: out.decision,
		AgreementRatio: out.agreement, ReachedQuorum: out.success, Metadata: metadata,
	}
	if err := e.store.RecordConsensusResult(ctx, resultRow); err != nil {
		return nil, err
	}

	for _, o := range opinions {
		agreed := o.Choice == out.decision
		if perr := e.store.RecordAgentParticipation(ctx, o.AgentID, agreed, o.Confidence); perr != nil {
			e.log.Warn().Err(perr).Str("agent_id", o.AgentID).Msg("failed to record agent participation")
		}
	}

	e.retire(ctx, proc, r, result, map[string]interface{}{
		"final_decision": out.decision, "final_state": finalState, "agreement": out.agreement,
	})
	return result, nil
}

// retire records the terminal audit event, moves the process from the
// active map into the completed map, and finalizes its in-memory state.
// Must be called with proc.mu held.
func (e *Engine) retire(ctx context.Context, proc *process, r *round, result *Result, auditDetail map[string]interface{}) {
	proc.state = result.FinalState
	if auditDetail != nil {
		e.recordAudit(ctx, r.id, "CONSENSUS_CALCULATED", auditDetail)
	} else {
		e.recordAudit(ctx, r.id, "CONSENSUS_TIMED_OUT", map[string]interface{}{"round_number": r.number})
	}

	e.mu.Lock()
	delete(e.processes, proc.id)
	e.completed[proc.id] = result
	e.mu.Unlock()
}

// GetConsensusResult returns the persisted outcome of a retired process.
func (e *Engine) GetConsensusResult(id string) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.completed[id]
	if !ok {
		return nil, errs.NewNotFoundError("consensus result not found: " + id)
	}
	return r, nil
}

// GetConsensusState returns a process's current state, auto-transitioning
// an active process whose round has expired to TIMEOUT.
func (e *Engine) GetConsensusState(id string) (State, error) {
	e.mu.RLock()
	proc, active := e.processes[id]
	completed, done := e.completed[id]
	e.mu.RUnlock()

	if active {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		e.checkTimeout(proc)
		return proc.state, nil
	}
	if done {
		return completed.FinalState, nil
	}
	return "", errs.NewNotFoundError("consensus process not found: " + id)
}

// IdentifyConflicts inspects the opinions of a process's current round and
// returns every weak-support decision or concern cluster found.
func (e *Engine) IdentifyConflicts(ctx context.Context, id string) ([]Conflict, error) {
	opinions, err := e.GetOpinions(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	return identifyConflicts(opinions), nil
}

// SuggestResolutionStrategies maps each conflict to a recommended next
// action.
func (e *Engine) SuggestResolutionStrategies(conflicts []Conflict) map[string]string {
	return suggestResolutionStrategies(conflicts)
}

// ResolveConflict records the chosen resolution strategy against the
// process's configuration and, for additional_round, opens a fresh round.
func (e *Engine) ResolveConflict(ctx context.Context, id, strategy string) error {
	proc, err := e.getProcess(id)
	if err != nil {
		return err
	}
	if err := e.store.SetCustomRule(ctx, proc.configID, "conflict_resolution", strategy); err != nil {
		return err
	}

	proc.mu.Lock()
	proc.state = StateResolvingConflicts
	r := proc.currentRound()
	proc.mu.Unlock()
	e.recordAudit(ctx, r.id, "CONFLICT_RESOLVED", map[string]interface{}{"strategy": strategy})

	if strategy == "additional_round" {
		return e.StartVotingRound(ctx, id)
	}
	return nil
}

// Register upserts an agent's registration. Agent registry operations act
// directly on the agents table and do not interact with in-flight
// consensus processes.
func (e *Engine) Register(ctx context.Context, agent *db.Agent) error {
	return e.store.UpsertAgent(ctx, agent)
}

// Update modifies an existing agent's registration.
func (e *Engine) Update(ctx context.Context, agent *db.Agent) error {
	return e.store.UpsertAgent(ctx, agent)
}

// Get retrieves a single agent by id.
func (e *Engine) Get(ctx context.Context, agentID string) (*db.Agent, error) {
	return e.store.GetAgent(ctx, agentID)
}

// ListActive returns every currently active agent.
func (e *Engine) ListActive(ctx context.Context) ([]*db.Agent, error) {
	return e.store.ListActiveAgents(ctx)
}

// Deactivate flips an agent's registration to inactive.
func (e *Engine) Deactivate(ctx context.Context, agentID string) error {
	return e.store.DeactivateAgent(ctx, agentID)
}
