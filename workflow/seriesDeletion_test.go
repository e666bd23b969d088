package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
)

func seriesFixture() []*models.Transaction {
	rootId := 1
	member := func(id int, status models.TransactionStatus, seq int) *models.Transaction {
		t := &models.Transaction{ID: id, CurrentStatus: status, SequenceNo: seq}
		if id != rootId {
			t.ParentTemplateId = &rootId
		}
		return t
	}
	// 2 paid, 3 pending
	return []*models.Transaction{
		member(1, models.TransactionStatusPaid, 1),
		member(2, models.TransactionStatusPaid, 2),
		member(3, models.TransactionStatusPending, 3),
		member(4, models.TransactionStatusPending, 4),
		member(5, models.TransactionStatusPending, 5),
	}
}

func scopePtr(s models.DeletionScope) *models.DeletionScope {
	return &s
}

func TestResolveDeletionScope_SeriesSkipsPaidMembers(t *testing.T) {
	series := seriesFixture()
	ids, err := ResolveDeletionScope(series[2], series, scopePtr(models.DeletionScopeSeries))
	if err != nil {
		t.Fatalf("ResolveDeletionScope: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("got %d ids, want 3: %v", len(ids), ids)
	}
	for _, id := range ids {
		if id == 1 || id == 2 {
			t.Fatalf("paid member %d resolved for deletion", id)
		}
	}
}

func TestResolveDeletionScope_SingleTargetsOnlyTheRow(t *testing.T) {
	series := seriesFixture()
	ids, err := ResolveDeletionScope(series[3], series, scopePtr(models.DeletionScopeSingle))
	if err != nil {
		t.Fatalf("ResolveDeletionScope: %v", err)
	}
	if len(ids) != 1 || ids[0] != 4 {
		t.Fatalf("got %v, want [4]", ids)
	}
}

func TestResolveDeletionScope_MissingScopeIsAmbiguous(t *testing.T) {
	series := seriesFixture()
	_, err := ResolveDeletionScope(series[2], series, nil)
	if !errors.Is(err, utils.ErrorAmbiguousScope) {
		t.Fatalf("got %v, want ErrorAmbiguousScope", err)
	}
}

func TestResolveDeletionScope_PaidTargetConflicts(t *testing.T) {
	series := seriesFixture()
	_, err := ResolveDeletionScope(series[0], series, scopePtr(models.DeletionScopeSeries))
	if !utils.IsConflictError(err) {
		t.Fatalf("got %v, want conflict error", err)
	}
}

func TestResolveDeletionScope_StandaloneNeedsNoScope(t *testing.T) {
	standalone := &models.Transaction{ID: 9, CurrentStatus: models.TransactionStatusPending, SequenceNo: 1}
	ids, err := ResolveDeletionScope(standalone, []*models.Transaction{standalone}, nil)
	if err != nil {
		t.Fatalf("ResolveDeletionScope: %v", err)
	}
	if len(ids) != 1 || ids[0] != 9 {
		t.Fatalf("got %v, want [9]", ids)
	}
}

func TestResolveDeletionScope_OnlyPaidSiblingsNeedNoScope(t *testing.T) {
	// a pending root whose remaining dependents are all paid deletes like a
	// standalone row: the paid siblings stay regardless of any scope
	rootId := 1
	root := &models.Transaction{ID: rootId, CurrentStatus: models.TransactionStatusPending, SequenceNo: 1}
	paidChild := &models.Transaction{ID: 2, CurrentStatus: models.TransactionStatusPaid, SequenceNo: 2, ParentTemplateId: &rootId}
	ids, err := ResolveDeletionScope(root, []*models.Transaction{root, paidChild}, nil)
	if err != nil {
		t.Fatalf("ResolveDeletionScope: %v", err)
	}
	if len(ids) != 1 || ids[0] != rootId {
		t.Fatalf("got %v, want [%d]", ids, rootId)
	}
}

func TestResolveDeletionScope_LastLiveMemberNeedsNoScope(t *testing.T) {
	// once the rest of the series is gone, the survivor deletes like a
	// standalone row
	rootId := 1
	survivor := &models.Transaction{ID: 5, CurrentStatus: models.TransactionStatusPending, SequenceNo: 5, ParentTemplateId: &rootId}
	ids, err := ResolveDeletionScope(survivor, []*models.Transaction{survivor}, nil)
	if err != nil {
		t.Fatalf("ResolveDeletionScope: %v", err)
	}
	if len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("got %v, want [5]", ids)
	}
}

func TestResolveDeletionScope_CancelledMembersDeleteWithSeries(t *testing.T) {
	series := seriesFixture()
	series[4].CurrentStatus = models.TransactionStatusCancelled
	ids, err := ResolveDeletionScope(series[2], series, scopePtr(models.DeletionScopeSeries))
	if err != nil {
		t.Fatalf("ResolveDeletionScope: %v", err)
	}
	found := false
	for _, id := range ids {
		if id == 5 {
			found = true
		}
	}
	if !found {
		t.Fatalf("cancelled member missing from %v", ids)
	}
}

func TestResolveDeletionScope_RejectsUnknownScope(t *testing.T) {
	series := seriesFixture()
	bogus := models.DeletionScope("Everything")
	_, err := ResolveDeletionScope(series[2], series, &bogus)
	if !utils.IsValidationError(err) {
		t.Fatalf("got %v, want validation error", err)
	}
}
