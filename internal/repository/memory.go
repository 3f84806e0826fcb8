package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"
)

// MemoryStore keeps every collection in process behind one lock. It honours the
// same uniqueness and version rules as the Postgres repositories and backs
// DATABASE_DRIVER=memory and the service tests.
type MemoryStore struct {
	mu       sync.Mutex
	loans    map[uuid.UUID]*domain.Loan
	payments map[string]*domain.Payment // by ledger ref
	users    map[string]*domain.User    // by wallet
	visas    map[string]*domain.VisaApplication
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:    make(map[uuid.UUID]*domain.Loan),
		payments: make(map[string]*domain.Payment),
		users:    make(map[string]*domain.User),
		visas:    make(map[string]*domain.VisaApplication),
	}
}

func (s *MemoryStore) Loans() LoanRepository       { return memoryLoans{s} }
func (s *MemoryStore) Payments() PaymentRepository { return memoryPayments{s} }
func (s *MemoryStore) Users() UserRepository       { return memoryUsers{s} }
func (s *MemoryStore) Visas() VisaRepository       { return memoryVisas{s} }

type memoryLoans struct{ s *MemoryStore }

func (m memoryLoans) Create(ctx context.Context, loan *domain.Loan) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	m.s.loans[loan.ID] = loan.Clone()
	return nil
}

func (m memoryLoans) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	loan, ok := m.s.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return loan.Clone(), nil
}

func (m memoryLoans) List(ctx context.Context, walletAddress string) ([]*domain.Loan, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	loans := []*domain.Loan{}
	for _, loan := range m.s.loans {
		if walletAddress == "" || loan.WalletAddress == walletAddress {
			loans = append(loans, loan.Clone())
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].CreatedAt.After(loans[j].CreatedAt) })
	return loans, nil
}

func (m memoryLoans) Update(ctx context.Context, loan *domain.Loan, expectedVersion int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	return m.s.updateLoanLocked(loan, expectedVersion)
}

func (m memoryLoans) ListDisbursedDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Loan, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	loans := []*domain.Loan{}
	for _, loan := range m.s.loans {
		if loan.Status != domain.LoanStatusDisbursed || loan.NextPaymentDue == nil {
			continue
		}
		due := *loan.NextPaymentDue
		if !due.Before(from) && due.Before(to) {
			loans = append(loans, loan.Clone())
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].NextPaymentDue.Before(*loans[j].NextPaymentDue) })
	return loans, nil
}

func (s *MemoryStore) updateLoanLocked(loan *domain.Loan, expectedVersion int) error {
	stored, ok := s.loans[loan.ID]
	if !ok || stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := loan.Clone()
	next.Version = expectedVersion + 1
	s.loans[loan.ID] = next
	loan.Version = next.Version
	return nil
}

type memoryPayments struct{ s *MemoryStore }

func (m memoryPayments) RecordPayment(ctx context.Context, payment *domain.Payment, loan *domain.Loan, expectedVersion int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, exists := m.s.payments[payment.LedgerRef]; exists {
		return ErrDuplicateLedgerRef
	}
	if err := m.s.updateLoanLocked(loan, expectedVersion); err != nil {
		return err
	}
	p := *payment
	m.s.payments[payment.LedgerRef] = &p
	return nil
}

func (m memoryPayments) GetByLedgerRef(ctx context.Context, ledgerRef string) (*domain.Payment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	payment, ok := m.s.payments[ledgerRef]
	if !ok {
		return nil, ErrNotFound
	}
	p := *payment
	return &p, nil
}

func (m memoryPayments) List(ctx context.Context, filter domain.PaymentFilter) ([]*domain.Payment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	payments := []*domain.Payment{}
	for _, payment := range m.s.payments {
		if filter.WalletAddress != "" && payment.WalletAddress != filter.WalletAddress {
			continue
		}
		if filter.LoanID != nil && payment.LoanID != *filter.LoanID {
			continue
		}
		p := *payment
		payments = append(payments, &p)
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].PaidAt.After(payments[j].PaidAt) })
	return payments, nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(ctx context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if m.existsLocked(user.WalletAddress, user.Email) {
		return ErrDuplicateUser
	}
	u := *user
	m.s.users[user.WalletAddress] = &u
	return nil
}

func (m memoryUsers) GetByWallet(ctx context.Context, walletAddress string) (*domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	user, ok := m.s.users[walletAddress]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

func (m memoryUsers) ExistsByWalletOrEmail(ctx context.Context, walletAddress, email string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	return m.existsLocked(walletAddress, email), nil
}

func (m memoryUsers) existsLocked(walletAddress, email string) bool {
	if _, ok := m.s.users[walletAddress]; ok {
		return true
	}
	for _, u := range m.s.users {
		if u.Email == email {
			return true
		}
	}
	return false
}

func (m memoryUsers) Update(ctx context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	stored, ok := m.s.users[user.WalletAddress]
	if !ok {
		return ErrNotFound
	}
	stored.Verified = user.Verified
	stored.ReputationScore = user.ReputationScore
	stored.HasVerificationSBT = user.HasVerificationSBT
	stored.HasVisaSBT = user.HasVisaSBT
	stored.UpdatedAt = user.UpdatedAt
	return nil
}

type memoryVisas struct{ s *MemoryStore }

func (m memoryVisas) Create(ctx context.Context, app *domain.VisaApplication) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, exists := m.s.visas[app.ApplicationID]; exists {
		return ErrDuplicateApplication
	}
	a := *app
	m.s.visas[app.ApplicationID] = &a
	return nil
}

func (m memoryVisas) GetByApplicationID(ctx context.Context, applicationID string) (*domain.VisaApplication, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	app, ok := m.s.visas[applicationID]
	if !ok {
		return nil, ErrNotFound
	}
	a := *app
	return &a, nil
}

func (m memoryVisas) List(ctx context.Context, walletAddress string) ([]*domain.VisaApplication, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	apps := []*domain.VisaApplication{}
	for _, app := range m.s.visas {
		if walletAddress == "" || app.WalletAddress == walletAddress {
			a := *app
			apps = append(apps, &a)
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].SubmittedAt.After(apps[j].SubmittedAt) })
	return apps, nil
}

func (m memoryVisas) Update(ctx context.Context, app *domain.VisaApplication, expectedStatus domain.VisaStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	stored, ok := m.s.visas[app.ApplicationID]
	if !ok || stored.Status != expectedStatus {
		return ErrVersionConflict
	}
	a := *app
	m.s.visas[app.ApplicationID] = &a
	return nil
}
