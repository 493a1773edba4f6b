package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
)

func generatedVisit(t *testing.T, f *fixture) recdomain.BillableVisit {
	t.Helper()
	f.addRateCard(t, 1850)
	f.addVisit(t, visitStart, visitEnd, 0)

	_, err := f.svc.Generate(context.Background(), generateReq(f))
	require.NoError(t, err)

	var billable recdomain.BillableVisit
	require.NoError(t, f.db.First(&billable).Error)
	return billable
}

func TestApprove_FromPending(t *testing.T) {
	f := setupFixture(t)
	billable := generatedVisit(t, f)

	approved, err := f.svc.Approve(context.Background(), billable.ID)
	require.NoError(t, err)
	assert.Equal(t, recdomain.StatusApproved, approved.Status)
}

func TestApprove_FromDisputed(t *testing.T) {
	f := setupFixture(t)
	billable := generatedVisit(t, f)

	_, err := f.svc.Dispute(context.Background(), billable.ID, "duration queried")
	require.NoError(t, err)

	approved, err := f.svc.Approve(context.Background(), billable.ID)
	require.NoError(t, err)
	assert.Equal(t, recdomain.StatusApproved, approved.Status)
}

func TestApprove_RejectsTerminalStates(t *testing.T) {
	f := setupFixture(t)
	billable := generatedVisit(t, f)

	_, err := f.svc.Void(context.Background(), billable.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), billable.ID)
	require.ErrorIs(t, err, recdomain.ErrStateConflict)

	var conflict *recdomain.StateConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, recdomain.StatusVoid, conflict.Current)
	assert.Equal(t, "approve", conflict.Action)
}

func TestDispute_RequiresReason(t *testing.T) {
	f := setupFixture(t)
	billable := generatedVisit(t, f)

	_, err := f.svc.Dispute(context.Background(), billable.ID, "   ")
	require.ErrorIs(t, err, recdomain.ErrReasonRequired)

	disputed, err := f.svc.Dispute(context.Background(), billable.ID, "wrong rate applied")
	require.NoError(t, err)
	assert.Equal(t, recdomain.StatusDisputed, disputed.Status)
	require.NotNil(t, disputed.DisputeReason)
	assert.Equal(t, "wrong rate applied", *disputed.DisputeReason)
}

func TestDispute_OnlyFromPending(t *testing.T) {
	f := setupFixture(t)
	billable := generatedVisit(t, f)

	_, err := f.svc.Approve(context.Background(), billable.ID)
	require.NoError(t, err)

	_, err = f.svc.Dispute(context.Background(), billable.ID, "too late")
	require.ErrorIs(t, err, recdomain.ErrStateConflict)
}

func TestOverride_ReplacesTotalKeepsComponents(t *testing.T) {
	f := setupFixture(t)
	billable := generatedVisit(t, f)

	overridden, err := f.svc.Override(context.Background(), billable.ID, 1500, "agreed goodwill discount")
	require.NoError(t, err)
	assert.Equal(t, recdomain.StatusPending, overridden.Status)
	assert.EqualValues(t, 1500, overridden.VisitTotal)
	assert.EqualValues(t, 1850, overridden.CareTotal)
	assert.True(t, overridden.Overridden())
}

func TestOverride_Validation(t *testing.T) {
	f := setupFixture(t)
	billable := generatedVisit(t, f)

	_, err := f.svc.Override(context.Background(), billable.ID, 1500, "")
	require.ErrorIs(t, err, recdomain.ErrReasonRequired)

	_, err = f.svc.Override(context.Background(), billable.ID, -1, "negative")
	require.ErrorIs(t, err, recdomain.ErrInvalidAmount)

	// Zero is a legitimate outcome of a dispute.
	overridden, err := f.svc.Override(context.Background(), billable.ID, 0, "visit waived")
	require.NoError(t, err)
	assert.EqualValues(t, 0, overridden.VisitTotal)
}

func TestVoid_ClearsLiveKey(t *testing.T) {
	f := setupFixture(t)
	billable := generatedVisit(t, f)

	voided, err := f.svc.Void(context.Background(), billable.ID)
	require.NoError(t, err)
	assert.Equal(t, recdomain.StatusVoid, voided.Status)
	assert.Nil(t, voided.CareVisitKey)

	_, err = f.svc.Void(context.Background(), billable.ID)
	require.ErrorIs(t, err, recdomain.ErrStateConflict)
}

func TestTransition_UnknownVisit(t *testing.T) {
	f := setupFixture(t)
	_, err := f.svc.Approve(context.Background(), f.node.Generate())
	require.ErrorIs(t, err, recdomain.ErrNotFound)
}

func TestBulkApprove_OnlyPendingInScope(t *testing.T) {
	f := setupFixture(t)
	f.addRateCard(t, 1850)
	f.addVisit(t, visitStart, visitEnd, 0)
	f.addVisit(t, visitStart.Add(24*time.Hour), visitEnd.Add(24*time.Hour), 0)
	f.addVisit(t, visitStart.Add(48*time.Hour), visitEnd.Add(48*time.Hour), 0)

	_, err := f.svc.Generate(context.Background(), generateReq(f))
	require.NoError(t, err)

	var disputeTarget recdomain.BillableVisit
	require.NoError(t, f.db.Order("visit_date ASC").First(&disputeTarget).Error)
	_, err = f.svc.Dispute(context.Background(), disputeTarget.ID, "carer mismatch")
	require.NoError(t, err)

	approved, err := f.svc.BulkApprove(context.Background(), recdomain.BulkApproveRequest{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, approved)

	var disputedCount int64
	require.NoError(t, f.db.Model(&recdomain.BillableVisit{}).
		Where("status = ?", recdomain.StatusDisputed).Count(&disputedCount).Error)
	assert.EqualValues(t, 1, disputedCount)
}

func TestBulkApprove_InvalidPeriod(t *testing.T) {
	f := setupFixture(t)
	_, err := f.svc.BulkApprove(context.Background(), recdomain.BulkApproveRequest{
		PeriodStart: periodEnd,
		PeriodEnd:   periodStart,
	})
	require.ErrorIs(t, err, recdomain.ErrInvalidPeriod)
}

func TestListAndSummary(t *testing.T) {
	f := setupFixture(t)
	f.addRateCard(t, 1850)
	f.addVisit(t, visitStart, visitEnd, 0)
	f.addVisit(t, visitStart.Add(24*time.Hour), visitEnd.Add(24*time.Hour), 0)

	_, err := f.svc.Generate(context.Background(), generateReq(f))
	require.NoError(t, err)

	resp, err := f.svc.List(context.Background(), recdomain.ListRequest{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Visits, 2)
	assert.EqualValues(t, 2, resp.TotalItems)

	status := recdomain.StatusApproved
	resp, err = f.svc.List(context.Background(), recdomain.ListRequest{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      &status,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Visits)

	summary, err := f.svc.GetSummary(context.Background(), recdomain.SummaryRequest{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.TotalVisits)
	assert.EqualValues(t, 120, summary.TotalMinutes)
	assert.EqualValues(t, 3700, summary.TotalAmount)
	require.Len(t, summary.ByStatus, 1)
	assert.Equal(t, recdomain.StatusPending, summary.ByStatus[0].Status)
}
