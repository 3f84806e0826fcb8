package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Simulated is an in-memory ledger for local runs and tests. Every submitted
// transaction confirms immediately unless marked rejected.
type Simulated struct {
	mu          sync.Mutex
	txs         map[string]simulatedTx
	rejected    map[string]bool
	reputation  map[string]int
	credentials map[string]map[CredentialKind]bool
	unavailable bool
	// AcceptUnknown confirms references the simulator never issued, which is
	// what happens when a browser wallet submitted the transaction itself.
	AcceptUnknown bool
	submissions   int
}

type simulatedTx struct {
	kind    string
	loanRef string
	amount  decimal.Decimal
}

func NewSimulated() *Simulated {
	return &Simulated{
		txs:           make(map[string]simulatedTx),
		rejected:      make(map[string]bool),
		reputation:    make(map[string]int),
		credentials:   make(map[string]map[CredentialKind]bool),
		AcceptUnknown: true,
	}
}

func (s *Simulated) SubmitLoanApplication(ctx context.Context, amount decimal.Decimal, termMonths int, purpose string) (string, error) {
	if !amount.IsPositive() || termMonths <= 0 {
		return "", fmt.Errorf("applyForLoan reverted: %w", ErrRejected)
	}
	return s.submit(ctx, simulatedTx{kind: TxKindLoanApplication, amount: amount})
}

func (s *Simulated) SubmitRepayment(ctx context.Context, loanRef string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("repayLoan reverted: %w", ErrRejected)
	}
	return s.submit(ctx, simulatedTx{kind: TxKindRepayment, loanRef: loanRef, amount: amount})
}

func (s *Simulated) submit(ctx context.Context, tx simulatedTx) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return "", ErrUnavailable
	}
	ref := "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.txs[ref] = tx
	s.submissions++
	return ref, nil
}

func (s *Simulated) ConfirmTransaction(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return ErrUnavailable
	}
	if s.rejected[ref] {
		return fmt.Errorf("transaction %s reverted: %w", ref, ErrRejected)
	}
	if _, ok := s.txs[ref]; ok || s.AcceptUnknown {
		return nil
	}
	return fmt.Errorf("transaction %s not found: %w", ref, ErrRejected)
}

func (s *Simulated) ConfirmRepayment(ctx context.Context, ref, loanRef string, amount decimal.Decimal) error {
	if err := s.ConfirmTransaction(ctx, ref); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[ref]
	if !ok {
		// Wallet-submitted and unknown to the simulator; AcceptUnknown let it through.
		return nil
	}
	return checkRepayment(ref, tx.kind, tx.loanRef, loanRef, ToTokenUnits(tx.amount), ToTokenUnits(amount))
}

// RecordRepayment registers a repayment the wallet submitted itself, so strict
// mode can confirm it.
func (s *Simulated) RecordRepayment(ref, loanRef string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[ref] = simulatedTx{kind: TxKindRepayment, loanRef: loanRef, amount: amount}
}

func (s *Simulated) QueryReputationScore(ctx context.Context, wallet string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return 0, ErrUnavailable
	}
	return s.reputation[strings.ToLower(wallet)], nil
}

func (s *Simulated) QueryCredential(ctx context.Context, wallet string, kind CredentialKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return false, ErrUnavailable
	}
	return s.credentials[strings.ToLower(wallet)][kind], nil
}

// Reject makes every later confirmation of ref fail.
func (s *Simulated) Reject(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[ref] = true
}

func (s *Simulated) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *Simulated) SetReputation(wallet string, score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reputation[strings.ToLower(wallet)] = score
}

func (s *Simulated) GrantCredential(wallet string, kind CredentialKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := strings.ToLower(wallet)
	if s.credentials[w] == nil {
		s.credentials[w] = make(map[CredentialKind]bool)
	}
	s.credentials[w][kind] = true
}

// Submissions counts transactions issued by the simulator.
func (s *Simulated) Submissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions
}
