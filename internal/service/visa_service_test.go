package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/openshelter/lending-engine/internal/logging"
	"github.com/openshelter/lending-engine/internal/mocks"
	"github.com/openshelter/lending-engine/internal/repository"
	customError "github.com/openshelter/lending-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newVisaRequest() *domain.CreateVisaApplicationRequest {
	return &domain.CreateVisaApplicationRequest{
		FullName:           "Amina Yusuf",
		Nationality:        "SO",
		PassportNumber:     "P1234567",
		DestinationCountry: "DE",
		VisaType:           "student",
		WalletAddress:      "0xAbC",
	}
}

func strPtr(s string) *string { return &s }

func TestVisaCreate(t *testing.T) {
	e := newEngine(t)

	app, err := e.visas.Create(context.Background(), newVisaRequest())
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^VA-2026-[0-9A-F]{8}$`), app.ApplicationID)
	assert.Equal(t, domain.VisaStatusPending, app.Status)
	assert.Equal(t, domain.DefaultVisaProcessingTime, app.EstimatedProcessingTime)
	assert.Equal(t, 0, app.ProcessingProgress)
	assert.Equal(t, "0xabc", app.WalletAddress)

	got, err := e.visas.Get(context.Background(), app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)

	list, err := e.visas.List(context.Background(), "0xABC")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestVisaCreate_RetriesIDCollision(t *testing.T) {
	e := newEngine(t)
	ids := []string{"VA-2026-AAAAAAAA", "VA-2026-AAAAAAAA", "VA-2026-BBBBBBBB"}
	e.visas.newID = func(int) string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := e.visas.Create(context.Background(), newVisaRequest())
	require.NoError(t, err)
	second, err := e.visas.Create(context.Background(), newVisaRequest())
	require.NoError(t, err)

	assert.Equal(t, "VA-2026-AAAAAAAA", first.ApplicationID)
	assert.Equal(t, "VA-2026-BBBBBBBB", second.ApplicationID)
}

func TestVisaUpdate_ApproveStampsOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	app, err := e.visas.Create(ctx, newVisaRequest())
	require.NoError(t, err)

	e.now = fixedNow.Add(time.Hour)
	approved, err := e.visas.Update(ctx, app.ApplicationID, &domain.UpdateVisaApplicationRequest{
		Status:    strPtr("approved"),
		LedgerRef: strPtr("0xmint"),
	})
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, fixedNow.Add(time.Hour), *approved.ApprovedAt)
	require.NotNil(t, approved.LedgerRef)
	assert.Equal(t, "0xmint", *approved.LedgerRef)

	// Same status again succeeds without moving the decision timestamp.
	e.now = fixedNow.Add(2 * time.Hour)
	sbt := true
	again, err := e.visas.Update(ctx, app.ApplicationID, &domain.UpdateVisaApplicationRequest{
		Status:     strPtr("approved"),
		HasVisaSBT: &sbt,
	})
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(time.Hour), *again.ApprovedAt)
	assert.True(t, again.HasVisaSBT)
	assert.Equal(t, fixedNow.Add(2*time.Hour), again.UpdatedAt)
}

func TestVisaUpdate_Rejections(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	app, err := e.visas.Create(ctx, newVisaRequest())
	require.NoError(t, err)

	_, err = e.visas.Update(ctx, app.ApplicationID, &domain.UpdateVisaApplicationRequest{Status: strPtr("rejected")})
	require.NoError(t, err)

	_, err = e.visas.Update(ctx, app.ApplicationID, &domain.UpdateVisaApplicationRequest{Status: strPtr("approved")})
	assert.True(t, errors.Is(err, customError.ErrIllegalTransition))

	_, err = e.visas.Update(ctx, app.ApplicationID, &domain.UpdateVisaApplicationRequest{Status: strPtr("pending")})
	assert.True(t, errors.Is(err, customError.ErrIllegalTransition))

	_, err = e.visas.Update(ctx, app.ApplicationID, &domain.UpdateVisaApplicationRequest{Status: strPtr("lost")})
	assert.True(t, errors.Is(err, customError.ErrInvalidArgument))

	over := 101
	_, err = e.visas.Update(ctx, app.ApplicationID, &domain.UpdateVisaApplicationRequest{ProcessingProgress: &over})
	assert.True(t, errors.Is(err, customError.ErrInvalidArgument))

	_, err = e.visas.Update(ctx, "VA-2026-MISSING", &domain.UpdateVisaApplicationRequest{})
	assert.True(t, errors.Is(err, customError.ErrNotFound))
}

func TestVisaUpdate_ProgressOnPending(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	app, err := e.visas.Create(ctx, newVisaRequest())
	require.NoError(t, err)

	progress := 40
	updated, err := e.visas.Update(ctx, app.ApplicationID, &domain.UpdateVisaApplicationRequest{ProcessingProgress: &progress})
	require.NoError(t, err)
	assert.Equal(t, 40, updated.ProcessingProgress)
	assert.Equal(t, domain.VisaStatusPending, updated.Status)
	assert.Nil(t, updated.ApprovedAt)
}

func TestVisaUpdate_RetriesOnStatusRace(t *testing.T) {
	visas := &mocks.MockVisaRepository{}
	svc := NewVisaService(visas, ledger.NewSimulated(), logging.Discard())

	pending := &domain.VisaApplication{ApplicationID: "VA-2026-00000001", Status: domain.VisaStatusPending}
	rejected := &domain.VisaApplication{ApplicationID: "VA-2026-00000001", Status: domain.VisaStatusRejected}

	visas.On("GetByApplicationID", mock.Anything, "VA-2026-00000001").Return(pending, nil).Once()
	visas.On("Update", mock.Anything, mock.Anything, domain.VisaStatusPending).Return(repository.ErrVersionConflict).Once()
	visas.On("GetByApplicationID", mock.Anything, "VA-2026-00000001").Return(rejected, nil).Once()

	_, err := svc.Update(context.Background(), "VA-2026-00000001", &domain.UpdateVisaApplicationRequest{Status: strPtr("approved")})
	assert.True(t, errors.Is(err, customError.ErrIllegalTransition))
	visas.AssertExpectations(t)
}
