package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ecoproof-backend/internal/ledger"
	"ecoproof-backend/internal/metrics"
	"ecoproof-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRewardAmount    uint64 = 10
	DefaultTransferTimeout        = 30 * time.Second

	// guardMargin keeps the reward guard alive past the transfer timeout
	// while the outcome is recorded
	guardMargin = time.Minute
)

// memoNamespace scopes the deterministic transfer memos
var memoNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://ecoproof.app/rewards"))

// Transferrer moves tokens on the external ledger
type Transferrer interface {
	Transfer(ctx context.Context, req ledger.TransferRequest) (string, error)
}

// RewardNotifier is told about every completed reward
type RewardNotifier interface {
	NotifyReward(ctx context.Context, userID string, c Confirmation)
}

// RewardConfig holds reward parameters
type RewardConfig struct {
	Amount          uint64
	TransferTimeout time.Duration
	FromSubaccount  string
}

// Confirmation describes a completed reward
type Confirmation struct {
	SubmissionID   int64  `json:"data_id"`
	UserID         string `json:"user"`
	Amount         uint64 `json:"amount"`
	To             string `json:"to,omitempty"`
	TransactionRef string `json:"transaction_ref,omitempty"`
	Balance        uint64 `json:"balance,omitempty"`
	Message        string `json:"message"`
}

// RewardEngine pays out majority-validated submissions exactly once
type RewardEngine struct {
	submissions *SubmissionStore
	votes       Tallier
	users       *UserDirectory
	ledger      Transferrer
	guard       Reserver
	notifiers   []RewardNotifier
	cfg         RewardConfig
	now         Clock
}

// NewRewardEngine creates a new reward engine. transfers may be nil when
// rewards are credited to in-app balances only.
func NewRewardEngine(
	submissions *SubmissionStore,
	votes Tallier,
	users *UserDirectory,
	transfers Transferrer,
	guard Reserver,
	cfg RewardConfig,
	now Clock,
) *RewardEngine {
	if cfg.Amount == 0 {
		cfg.Amount = DefaultRewardAmount
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = DefaultTransferTimeout
	}
	if guard == nil {
		guard = NewLocalReserver()
	}
	return &RewardEngine{
		submissions: submissions,
		votes:       votes,
		users:       users,
		ledger:      transfers,
		guard:       guard,
		cfg:         cfg,
		now:         now.orDefault(),
	}
}

// AddNotifier registers a listener for completed rewards
func (e *RewardEngine) AddNotifier(n RewardNotifier) {
	e.notifiers = append(e.notifiers, n)
}

// LedgerEnabled reports whether rewards are paid through the external ledger
func (e *RewardEngine) LedgerEnabled() bool {
	return e.ledger != nil
}

// Memo returns the transfer memo for a submission. It is stable across
// attempts so the ledger can reject a duplicate payout.
func Memo(submissionID int64) string {
	return uuid.NewSHA1(memoNamespace, []byte(strconv.FormatInt(submissionID, 10))).String()
}

func guardKey(submissionID int64) string {
	return "submission:" + strconv.FormatInt(submissionID, 10)
}

// unrewarded loads a submission and rejects it if already rewarded
func (e *RewardEngine) unrewarded(id int64) (*models.Submission, error) {
	sub, err := e.submissions.Get(id)
	if err != nil {
		return nil, err
	}
	if sub.Rewarded {
		return nil, models.ErrAlreadyRewarded
	}
	return sub, nil
}

// eligible runs the existence, rewarded and majority checks
func (e *RewardEngine) eligible(id int64) (*models.Submission, error) {
	sub, err := e.unrewarded(id)
	if err != nil {
		return nil, err
	}
	tally := e.votes.Tally(id)
	if !tally.Majority() {
		return nil, models.ErrMajorityInvalid.WithCause(
			fmt.Errorf("%d valid, %d invalid votes", tally.Valid, tally.Invalid))
	}
	return sub, nil
}

// guardLease is how long a reward guard must outlive its holder's transfer
func (e *RewardEngine) guardLease() time.Duration {
	return e.cfg.TransferTimeout + guardMargin
}

// reserve takes the per-submission guard and returns its release func
func (e *RewardEngine) reserve(ctx context.Context, id int64) (func(), error) {
	key := guardKey(id)
	token, ok, err := e.guard.Reserve(ctx, key, e.guardLease())
	if err != nil {
		return nil, fmt.Errorf("failed to reserve reward guard: %w", err)
	}
	if !ok {
		return nil, models.ErrRewardInProgress
	}
	return func() {
		// the caller may be gone; the guard must still be released
		if err := e.guard.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.Error().Err(err).Int64("submission_id", id).Msg("Failed to release reward guard")
		}
	}, nil
}

func (e *RewardEngine) record(path string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(models.KindOf(err))
	}
	metrics.RewardOutcomes.WithLabelValues(path, outcome).Inc()
}

// Reward transfers the reward for a majority-validated submission to the
// owner's registered wallet and marks the submission rewarded
func (e *RewardEngine) Reward(ctx context.Context, id int64) (conf *Confirmation, err error) {
	defer func() { e.record("ledger", err) }()

	if e.ledger == nil {
		return nil, models.ErrTransferFailed.WithCause(errors.New("ledger is not configured"))
	}

	sub, err := e.eligible(id)
	if err != nil {
		return nil, err
	}

	addr, err := e.users.PayoutAddress(sub.UserID)
	if err != nil {
		return nil, err
	}
	to, err := ValidateAddress(addr)
	if err != nil {
		return nil, err
	}

	release, err := e.reserve(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	// another replica may have paid between the first check and the guard
	if _, err := e.unrewarded(id); err != nil {
		return nil, err
	}

	ref, err := e.transfer(ctx, id, to)
	if err != nil {
		log.Error().
			Err(err).
			Int64("submission_id", id).
			Str("user_id", sub.UserID).
			Str("to", to).
			Msg("Reward transfer failed")
		return nil, models.ErrTransferFailed.WithCause(err)
	}

	if err := e.submissions.MarkRewarded(context.WithoutCancel(ctx), id); err != nil {
		log.Error().
			Err(err).
			Int64("submission_id", id).
			Str("transaction_ref", ref).
			Msg("Transfer succeeded but submission could not be marked rewarded")
		return nil, fmt.Errorf("failed to record reward for submission %d (transaction %s): %w", id, ref, err)
	}

	conf = &Confirmation{
		SubmissionID:   id,
		UserID:         sub.UserID,
		Amount:         e.cfg.Amount,
		To:             to,
		TransactionRef: ref,
		Message:        fmt.Sprintf("rewarded %d tokens, transaction %s", e.cfg.Amount, ref),
	}

	log.Info().
		Int64("submission_id", id).
		Str("user_id", sub.UserID).
		Str("to", to).
		Uint64("amount", e.cfg.Amount).
		Str("transaction_ref", ref).
		Msg("Reward paid")

	e.notify(ctx, conf)
	return conf, nil
}

// transfer performs the single ledger call. It is detached from the
// request's cancellation and bounded by the configured timeout.
func (e *RewardEngine) transfer(ctx context.Context, id int64, to string) (string, error) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.TransferTimeout)
	defer cancel()

	createdAt := uint64(e.now().UnixNano())
	req := ledger.TransferRequest{
		To:             to,
		Amount:         e.cfg.Amount,
		Memo:           Memo(id),
		FromSubaccount: e.cfg.FromSubaccount,
		CreatedAtTime:  &createdAt,
	}

	start := time.Now()
	ref, err := e.ledger.Transfer(tctx, req)
	metrics.TransferDuration.Observe(time.Since(start).Seconds())
	return ref, err
}

// CreditBalance rewards a majority-validated submission by crediting the
// owner's in-app balance instead of a ledger transfer
func (e *RewardEngine) CreditBalance(ctx context.Context, id int64) (conf *Confirmation, err error) {
	defer func() { e.record("balance", err) }()

	sub, err := e.eligible(id)
	if err != nil {
		return nil, err
	}

	release, err := e.reserve(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := e.unrewarded(id); err != nil {
		return nil, err
	}

	balance, err := e.users.Credit(ctx, sub.UserID, e.cfg.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.submissions.MarkRewarded(ctx, id); err != nil {
		// undo the credit so a retry cannot pay twice
		if _, derr := e.users.Debit(context.WithoutCancel(ctx), sub.UserID, e.cfg.Amount); derr != nil {
			log.Error().
				Err(derr).
				Int64("submission_id", id).
				Str("user_id", sub.UserID).
				Uint64("amount", e.cfg.Amount).
				Msg("Failed to reverse balance credit")
			return nil, fmt.Errorf("failed to record reward for submission %d and to reverse credit: %w", id, errors.Join(err, derr))
		}
		return nil, err
	}

	conf = &Confirmation{
		SubmissionID: id,
		UserID:       sub.UserID,
		Amount:       e.cfg.Amount,
		Balance:      balance,
		Message:      fmt.Sprintf("credited %d tokens, balance %d", e.cfg.Amount, balance),
	}
	e.notify(ctx, conf)
	return conf, nil
}

// MarkRewardedWithoutTransfer flags a submission as rewarded without any payout
func (e *RewardEngine) MarkRewardedWithoutTransfer(ctx context.Context, id int64) (err error) {
	defer func() { e.record("manual", err) }()

	if _, err := e.unrewarded(id); err != nil {
		return err
	}

	release, err := e.reserve(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if err := e.submissions.MarkRewarded(ctx, id); err != nil {
		return err
	}
	log.Warn().Int64("submission_id", id).Msg("Submission marked rewarded without transfer")
	return nil
}

func (e *RewardEngine) notify(ctx context.Context, conf *Confirmation) {
	for _, n := range e.notifiers {
		n.NotifyReward(ctx, conf.UserID, *conf)
	}
}
