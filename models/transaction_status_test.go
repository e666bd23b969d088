package models

import (
	"testing"
	"time"
)

func statusFixture(status TransactionStatus, dueDate time.Time) Transaction {
	return Transaction{CurrentStatus: status, DueDate: dueDate}
}

func TestDisplayStatus_OverdueIsDerivedNotStored(t *testing.T) {
	asOf := time.Date(2024, time.March, 10, 14, 30, 0, 0, time.UTC)
	transaction := statusFixture(TransactionStatusPending, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))

	if got := transaction.DisplayStatus(asOf); got != TransactionDisplayStatusOverdue {
		t.Fatalf("got %s, want Overdue", got)
	}
	// stored status is untouched
	if transaction.CurrentStatus != TransactionStatusPending {
		t.Fatalf("stored status changed to %s", transaction.CurrentStatus)
	}
}

func TestDisplayStatus_DueTodayIsPending(t *testing.T) {
	// day granularity: due earlier the same day is not overdue
	asOf := time.Date(2024, time.March, 10, 23, 59, 0, 0, time.UTC)
	transaction := statusFixture(TransactionStatusPending, time.Date(2024, time.March, 10, 1, 0, 0, 0, time.UTC))

	if got := transaction.DisplayStatus(asOf); got != TransactionDisplayStatusPending {
		t.Fatalf("got %s, want Pending", got)
	}
}

func TestDisplayStatus_FutureDueIsPending(t *testing.T) {
	asOf := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	transaction := statusFixture(TransactionStatusPending, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC))

	if got := transaction.DisplayStatus(asOf); got != TransactionDisplayStatusPending {
		t.Fatalf("got %s, want Pending", got)
	}
}

func TestDisplayStatus_PaidAndCancelledNeverOverdue(t *testing.T) {
	asOf := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	longPast := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

	paid := statusFixture(TransactionStatusPaid, longPast)
	if got := paid.DisplayStatus(asOf); got != TransactionDisplayStatusPaid {
		t.Fatalf("paid: got %s", got)
	}
	cancelled := statusFixture(TransactionStatusCancelled, longPast)
	if got := cancelled.DisplayStatus(asOf); got != TransactionDisplayStatusCancelled {
		t.Fatalf("cancelled: got %s", got)
	}
}

func TestSeriesRootId(t *testing.T) {
	rootId := 7
	root := Transaction{ID: 7}
	if root.SeriesRootId() != 7 {
		t.Fatalf("root resolves to %d", root.SeriesRootId())
	}
	child := Transaction{ID: 12, ParentTemplateId: &rootId}
	if child.SeriesRootId() != 7 {
		t.Fatalf("child resolves to %d", child.SeriesRootId())
	}
}
