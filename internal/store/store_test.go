package store

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, logging.NewLogger()), mock
}

func TestMarkPostedCommitsOnce(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE content_items`).
		WithArgs(string(models.ContentStatePosted), now, "urn:123", "item-1", string(models.ContentStateScheduled)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	committed, err := s.MarkPosted(context.Background(), "item-1", "urn:123", now)
	if err != nil {
		t.Fatalf("mark posted: %v", err)
	}
	if !committed {
		t.Fatalf("expected commit")
	}

	// Second commit for the same item finds no scheduled row.
	mock.ExpectExec(`UPDATE content_items`).
		WithArgs(string(models.ContentStatePosted), now, "urn:123", "item-1", string(models.ContentStateScheduled)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	committed, err = s.MarkPosted(context.Background(), "item-1", "urn:123", now)
	if err != nil {
		t.Fatalf("mark posted: %v", err)
	}
	if committed {
		t.Fatalf("expected second commit to be a no-op")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRequeueFailedRespectsRetryBudget(t *testing.T) {
	s, mock := newTestStore(t)
	slot := time.Now().Add(time.Hour)

	mock.ExpectExec(`UPDATE content_items`).
		WithArgs(string(models.ContentStateScheduled), slot, "item-1", string(models.ContentStateFailed), 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.RequeueFailed(context.Background(), "item-1", slot, 3)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if ok {
		t.Fatalf("expected requeue to be rejected once the budget is spent")
	}
}

func TestInsertEventIsIdempotent(t *testing.T) {
	s, mock := newTestStore(t)
	ev := &models.EngagementEvent{ID: "ev-1", ContentID: "item-1", ActorRef: "actor", RawText: "hi", ReceivedAt: time.Now()}

	mock.ExpectExec(`INSERT INTO engagement_events`).
		WithArgs(ev.ID, ev.ContentID, ev.ActorRef, ev.RawText, ev.ReceivedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO engagement_events`).
		WithArgs(ev.ID, ev.ContentID, ev.ActorRef, ev.RawText, ev.ReceivedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.InsertEvent(context.Background(), ev)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.InsertEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate event to be skipped")
	}
}

func TestFindRecentInquiryNotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .+ FROM inquiries`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.FindRecentInquiry(context.Background(), "actor", "item-1", time.Now().Add(-24*time.Hour))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListInquiriesAppliesMinPriority(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .+ FROM inquiries WHERE status = \$1 AND priority >= \$2`).
		WithArgs(string(models.InquiryStatusNew), 4).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "content_id", "actor_ref", "categories", "priority",
			"estimated_value", "status", "corroborations", "created_at", "updated_at",
		}).AddRow("inq-1", "ev-1", "item-1", "actor", "{budget mention}", 4, 27500, "new", 0, time.Now(), time.Now()))

	inqs, err := s.ListInquiries(context.Background(), string(models.InquiryStatusNew), 4, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(inqs) != 1 || inqs[0].Priority != 4 {
		t.Fatalf("unexpected inquiries %+v", inqs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReplacePerformanceRecordsIsTransactional(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()
	recs := []models.PerformanceRecord{
		{Category: "engineering", Dimension: models.DimensionPostingHour, Value: "9", Score: 0.8, SampleSize: 5, WindowDays: 30, ComputedAt: now},
		{Category: "engineering", Dimension: models.DimensionPostingDay, Value: "Tuesday", Score: 0.6, SampleSize: 4, WindowDays: 30, ComputedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM performance_records`).WillReturnResult(sqlmock.NewResult(0, 10))
	for _, rec := range recs {
		mock.ExpectExec(`INSERT INTO performance_records`).
			WithArgs(rec.Category, rec.Dimension, rec.Value, rec.EngagementRate, rec.ConversionRate,
				rec.Score, rec.SampleSize, rec.WindowDays, rec.ComputedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := s.ReplacePerformanceRecords(context.Background(), recs); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReplacePerformanceRecordsRollsBackOnError(t *testing.T) {
	s, mock := newTestStore(t)
	recs := []models.PerformanceRecord{{Category: "c", Dimension: models.DimensionHookType, Value: "question"}}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM performance_records`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO performance_records`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := s.ReplacePerformanceRecords(context.Background(), recs); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRunningExperimentPrefersScopedCategory(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "dimension", "category", "variants", "min_sample_size",
		"confidence", "status", "winner", "created_at", "concluded_at",
	}).AddRow("exp-1", "hook_type", "engineering", "{question,story}", 30, 0.95, "running", nil, now, nil)

	mock.ExpectQuery(`SELECT .+ FROM experiments`).
		WithArgs(string(models.ExperimentStatusRunning), "engineering").
		WillReturnRows(rows)

	exp, err := s.RunningExperimentForCategory(context.Background(), "engineering")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if exp.ID != "exp-1" || len(exp.Variants) != 2 {
		t.Fatalf("unexpected experiment %+v", exp)
	}
}
