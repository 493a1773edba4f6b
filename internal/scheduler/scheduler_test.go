package scheduler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carebridge/billing/internal/clock"
	invoicedomain "github.com/carebridge/billing/internal/invoice/domain"
	"github.com/carebridge/billing/internal/seed"
)

func setupSweep(t *testing.T) (*gorm.DB, *Scheduler, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, seed.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))

	sched := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fakeClock,
	})
	return db, sched, fakeClock, node
}

func addInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, status invoicedomain.InvoiceStatus, dueDate time.Time, total, paid int64) invoicedomain.Invoice {
	t.Helper()
	invoice := invoicedomain.Invoice{
		ID:            node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%06d", node.Generate()%1000000),
		FunderID:      node.Generate(),
		InvoiceDate:   dueDate.AddDate(0, 0, -30),
		DueDate:       dueDate,
		PeriodStart:   dueDate.AddDate(0, -2, 0),
		PeriodEnd:     dueDate.AddDate(0, -1, 0),
		TotalAmount:   total,
		AmountPaid:    paid,
		Status:        status,
	}
	require.NoError(t, db.Create(&invoice).Error)
	return invoice
}

func TestSweepOverdue_MarksPastDueUnpaid(t *testing.T) {
	db, sched, fakeClock, node := setupSweep(t)
	now := fakeClock.Now()

	pastDue := addInvoice(t, db, node, invoicedomain.InvoiceStatusSent, now.AddDate(0, 0, -1), 10000, 0)
	partial := addInvoice(t, db, node, invoicedomain.InvoiceStatusPartiallyPaid, now.AddDate(0, 0, -5), 10000, 6000)
	notDue := addInvoice(t, db, node, invoicedomain.InvoiceStatusSent, now.AddDate(0, 0, 10), 10000, 0)
	settled := addInvoice(t, db, node, invoicedomain.InvoiceStatusPaid, now.AddDate(0, 0, -1), 10000, 10000)
	draft := addInvoice(t, db, node, invoicedomain.InvoiceStatusDraft, now.AddDate(0, 0, -1), 10000, 0)

	require.NoError(t, sched.RunOnce(context.Background()))

	status := func(id snowflake.ID) invoicedomain.InvoiceStatus {
		var invoice invoicedomain.Invoice
		require.NoError(t, db.Where("id = ?", id).First(&invoice).Error)
		return invoice.Status
	}
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, status(pastDue.ID))
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, status(partial.ID))
	assert.Equal(t, invoicedomain.InvoiceStatusSent, status(notDue.ID))
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, status(settled.ID))
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, status(draft.ID))
}

func TestSweepOverdue_FollowsFakeClock(t *testing.T) {
	db, sched, fakeClock, node := setupSweep(t)
	invoice := addInvoice(t, db, node, invoicedomain.InvoiceStatusSent, fakeClock.Now().AddDate(0, 0, 7), 5000, 0)

	require.NoError(t, sched.RunOnce(context.Background()))
	var reloaded invoicedomain.Invoice
	require.NoError(t, db.Where("id = ?", invoice.ID).First(&reloaded).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, reloaded.Status)

	fakeClock.Advance(8 * 24 * time.Hour)
	require.NoError(t, sched.RunOnce(context.Background()))
	require.NoError(t, db.Where("id = ?", invoice.ID).First(&reloaded).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, reloaded.Status)
}

func TestSweepOverdue_IsIdempotent(t *testing.T) {
	db, sched, fakeClock, node := setupSweep(t)
	invoice := addInvoice(t, db, node, invoicedomain.InvoiceStatusSent, fakeClock.Now().AddDate(0, 0, -1), 5000, 0)

	require.NoError(t, sched.RunOnce(context.Background()))
	require.NoError(t, sched.RunOnce(context.Background()))

	var reloaded invoicedomain.Invoice
	require.NoError(t, db.Where("id = ?", invoice.ID).First(&reloaded).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, reloaded.Status)
}
