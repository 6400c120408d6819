package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"academycore/internal/gateway"
	"academycore/internal/observability"
	"academycore/internal/queue"
	"academycore/pkg/domain"
)

func TestCreateStudentOfflineQueuesUntilSync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, day(2024, time.February, 10))

	st := mustStudent(t, h.svc, Student{Name: "  Amaya ", Grade: "6", JoinedDate: timePtr(day(2024, time.January, 15).Add(9 * time.Hour))})
	if st.Name != "Amaya" || st.Status != StudentActive {
		t.Fatalf("unexpected student %+v", st)
	}
	if !st.JoinedDate.Equal(day(2024, time.January, 15)) {
		t.Fatalf("expected joined date truncated to the day, got %v", st.JoinedDate)
	}
	if h.svc.PendingSync() != 1 || len(h.gw.Calls()) != 0 {
		t.Fatalf("expected queued create while offline")
	}
	if got := h.queue.Pending()[0]; got.Table != gateway.TableStudents || got.Operation != queue.OpUpsert {
		t.Fatalf("unexpected queued action %+v", got)
	}

	res := h.svc.SyncNow(ctx)
	if res.Succeeded != 1 || len(res.Remaining) != 0 {
		t.Fatalf("unexpected drain %+v", res)
	}
	row, ok := h.gw.Get(gateway.TableStudents, st.ID)
	if !ok || row["name"] != "Amaya" {
		t.Fatalf("expected remote row after sync, got %v", row)
	}
}

func TestCreateStudentOnlineWritesThrough(t *testing.T) {
	h := newHarness(t, true, day(2024, time.February, 10))
	st := mustStudent(t, h.svc, Student{Name: "Nimal"})
	if h.svc.PendingSync() != 0 {
		t.Fatalf("expected nothing queued")
	}
	if _, ok := h.gw.Get(gateway.TableStudents, st.ID); !ok {
		t.Fatalf("expected remote row")
	}
}

func TestRemoteFailureKeepsLocalChange(t *testing.T) {
	h := newHarness(t, true, day(2024, time.February, 10))
	h.gw.FailAll(errors.New("503 service unavailable"))
	st := mustStudent(t, h.svc, Student{Name: "Kasun"})
	if _, ok := h.svc.Store().GetStudent(st.ID); !ok {
		t.Fatalf("local write must survive a remote failure")
	}
	if h.svc.PendingSync() != 1 {
		t.Fatalf("expected failed write queued, got %d", h.svc.PendingSync())
	}
	h.gw.FailAll(nil)
	if res := h.svc.SyncNow(context.Background()); len(res.Remaining) != 0 {
		t.Fatalf("expected queue drained, got %+v", res)
	}
}

func TestUpdateStudentTruncatesJoinedDate(t *testing.T) {
	h := newHarness(t, true, day(2024, time.February, 10))
	st := mustStudent(t, h.svc, Student{Name: "Dilini"})
	updated, _, err := h.svc.UpdateStudent(context.Background(), st.ID, func(p *Student) error {
		p.JoinedDate = timePtr(day(2024, time.January, 15).Add(13*time.Hour + 30*time.Minute))
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.JoinedDate.Equal(day(2024, time.January, 15)) {
		t.Fatalf("expected joined date truncated to the day, got %v", updated.JoinedDate)
	}
}

func TestRenameAfterReconnectSurvivesSync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, day(2024, time.February, 10))
	st := mustStudent(t, h.svc, Student{Name: "Old"})

	h.monitor.Set(true)
	if _, _, err := h.svc.UpdateStudent(ctx, st.ID, func(p *Student) error {
		p.Name = "New"
		return nil
	}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	h.svc.SyncNow(ctx)

	row, ok := h.gw.Get(gateway.TableStudents, st.ID)
	if !ok || row["name"] != "New" || h.svc.PendingSync() != 0 {
		t.Fatalf("expected remote to end with the rename, got %v (pending %d)", row, h.svc.PendingSync())
	}
}

func TestCreateStudentValidation(t *testing.T) {
	h := newHarness(t, true, day(2024, time.February, 10))
	_, _, err := h.svc.CreateStudent(context.Background(), Student{Name: "   "})
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Entity != EntityStudent || len(verr.Fields) != 1 || verr.Fields[0].Field != "Name" || verr.Fields[0].Rule != "required" {
		t.Fatalf("unexpected validation error %+v", verr)
	}
	_, _, err = h.svc.CreateStudent(context.Background(), Student{Name: "X", Status: "graduated"})
	if !errors.As(err, &verr) || verr.Fields[0].Rule != "oneof" {
		t.Fatalf("expected status oneof failure, got %v", err)
	}
	if len(h.gw.Calls()) != 0 || h.svc.PendingSync() != 0 {
		t.Fatalf("invalid input must not replicate")
	}
}

func TestRecordPaymentDefaultsBillingMonthAndNextDue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, day(2024, time.February, 10))
	st := mustStudent(t, h.svc, Student{Name: "Ruwan", JoinedDate: timePtr(day(2024, time.January, 15))})

	status, err := h.svc.StudentFeeStatus(st.ID)
	if err != nil {
		t.Fatalf("fee status: %v", err)
	}
	if !status.Overdue || !status.NeverPaid || !status.NextDue.Equal(day(2024, time.January, 15)) {
		t.Fatalf("expected unpaid student overdue from join date, got %+v", status)
	}

	first, _, err := h.svc.RecordPayment(ctx, FeeRecord{StudentID: st.ID, Amount: decimal.NewFromInt(1500)})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if !first.BillingMonth.Equal(day(2024, time.January, 15)) || !first.NextDueDate.Equal(day(2024, time.February, 15)) {
		t.Fatalf("unexpected first payment cycle %+v", first)
	}
	if !first.Date.Equal(day(2024, time.February, 10)) {
		t.Fatalf("expected payment date to default to today, got %v", first.Date)
	}

	second, _, err := h.svc.RecordPayment(ctx, FeeRecord{StudentID: st.ID, Amount: decimal.NewFromInt(1500)})
	if err != nil {
		t.Fatalf("record second payment: %v", err)
	}
	if !second.BillingMonth.Equal(day(2024, time.February, 15)) || !second.NextDueDate.Equal(day(2024, time.March, 15)) {
		t.Fatalf("unexpected second payment cycle %+v", second)
	}

	status, _ = h.svc.StudentFeeStatus(st.ID)
	if status.Overdue || !status.NextDue.Equal(day(2024, time.March, 15)) {
		t.Fatalf("expected paid-up student, got %+v", status)
	}
	if len(h.gw.Rows(gateway.TableFees)) != 2 {
		t.Fatalf("expected both fees replicated")
	}
}

func TestRecordPaymentRejectsDuplicateCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, day(2024, time.February, 10))
	st := mustStudent(t, h.svc, Student{Name: "Ishara", JoinedDate: timePtr(day(2024, time.January, 15))})

	fee, _, err := h.svc.RecordPayment(ctx, FeeRecord{StudentID: st.ID, Amount: decimal.NewFromInt(1000), BillingMonth: timePtr(day(2024, time.January, 15))})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	calls := len(h.gw.Calls())

	_, _, err = h.svc.RecordPayment(ctx, FeeRecord{StudentID: st.ID, Amount: decimal.NewFromInt(1000), BillingMonth: timePtr(day(2024, time.January, 20))})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation for second January payment, got %v", err)
	}
	if violation.Result.Violations[0].Rule != "fee_cycle_unique" {
		t.Fatalf("unexpected violation %+v", violation.Result)
	}
	if len(h.svc.Store().ListFees()) != 1 || len(h.gw.Calls()) != calls {
		t.Fatalf("blocked payment must change nothing")
	}

	// Editing a record onto its own month is allowed.
	edited, _, err := h.svc.UpdateFee(ctx, fee.ID, func(f *FeeRecord) error {
		f.Notes = "cash"
		return nil
	})
	if err != nil || edited.Notes != "cash" {
		t.Fatalf("expected edit of same cycle to pass: %v", err)
	}
	moved, _, err := h.svc.UpdateFee(ctx, fee.ID, func(f *FeeRecord) error {
		f.BillingMonth = timePtr(day(2024, time.March, 15).Add(17 * time.Hour))
		return nil
	})
	if err != nil {
		t.Fatalf("move fee to March: %v", err)
	}
	if !moved.BillingMonth.Equal(day(2024, time.March, 15)) {
		t.Fatalf("expected edited billing month truncated to the day, got %v", moved.BillingMonth)
	}
	if !moved.NextDueDate.Equal(day(2024, time.April, 15)) {
		t.Fatalf("expected next due recomputed on edit, got %v", moved.NextDueDate)
	}
}

func TestRecordPaymentInputChecks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, day(2024, time.February, 10))
	st := mustStudent(t, h.svc, Student{Name: "Tharaka"})

	if _, _, err := h.svc.RecordPayment(ctx, FeeRecord{StudentID: st.ID, Amount: decimal.NewFromInt(-5)}); err == nil {
		t.Fatalf("expected negative amount rejected")
	}
	if _, _, err := h.svc.RecordPayment(ctx, FeeRecord{Amount: decimal.NewFromInt(5)}); err == nil {
		t.Fatalf("expected missing student id rejected")
	}
	if _, _, err := h.svc.RecordPayment(ctx, FeeRecord{StudentID: "ghost", Amount: decimal.NewFromInt(5)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown student, got %v", err)
	}
}

func TestSaveExamWarnsWhenScoreExceedsTotal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, day(2024, time.February, 10))
	st := mustStudent(t, h.svc, Student{Name: "Sachini"})

	exam, res, err := h.svc.SaveExam(ctx, ExamRecord{StudentID: st.ID, TestName: "Term 1", Score: 105, Total: 100})
	if err != nil {
		t.Fatalf("save exam: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != SeverityWarn {
		t.Fatalf("expected a single warning, got %+v", res)
	}
	if exam.Date.IsZero() {
		t.Fatalf("expected exam date to default")
	}
	if _, _, err := h.svc.SaveExam(ctx, ExamRecord{StudentID: "ghost", TestName: "Term 1", Score: 10, Total: 100}); err == nil {
		t.Fatalf("expected exam for missing student blocked")
	}
	if _, _, err := h.svc.SaveExam(ctx, ExamRecord{StudentID: st.ID, TestName: "Term 2", Score: 10}); err == nil {
		t.Fatalf("expected zero total rejected")
	}
	avg, ok := h.svc.ExamAverage(st.ID)
	if !ok || avg != 105 {
		t.Fatalf("unexpected exam average %v %v", avg, ok)
	}
}

func TestDeleteStudentCascadesChildrenFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, day(2024, time.February, 10))
	st := mustStudent(t, h.svc, Student{Name: "Dinuka", Grade: "7", JoinedDate: timePtr(day(2024, time.January, 6))})
	other := mustStudent(t, h.svc, Student{Name: "Other", Grade: "7"})
	fee, _, err := h.svc.RecordPayment(ctx, FeeRecord{StudentID: st.ID, Amount: decimal.NewFromInt(800)})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	exam, _, err := h.svc.SaveExam(ctx, ExamRecord{StudentID: st.ID, TestName: "Unit", Score: 40, Total: 50})
	if err != nil {
		t.Fatalf("exam: %v", err)
	}
	rec, _, err := h.svc.RecordAttendance(ctx, AttendanceRecord{ClassID: "7", Date: day(2024, time.January, 6), StudentIDsPresent: []string{st.ID}})
	if err != nil {
		t.Fatalf("attendance: %v", err)
	}

	h.monitor.Set(false)
	if _, err := h.svc.DeleteStudent(ctx, st.ID); err != nil {
		t.Fatalf("delete student: %v", err)
	}
	pending := h.queue.Pending()
	if len(pending) != 3 {
		t.Fatalf("expected three queued deletes, got %+v", pending)
	}
	want := []gateway.Table{gateway.TableFees, gateway.TableExams, gateway.TableStudents}
	for i, action := range pending {
		if action.Table != want[i] || action.Operation != queue.OpDelete {
			t.Fatalf("action %d: got %s/%s, want delete on %s", i, action.Operation, action.Table, want[i])
		}
	}

	store := h.svc.Store()
	if _, ok := store.GetStudent(st.ID); ok {
		t.Fatalf("expected student removed locally")
	}
	if len(store.ListFees()) != 0 || len(store.ListExams()) != 0 {
		t.Fatalf("expected fees and exams cascaded")
	}
	if len(store.ListAttendance()) != 1 || !store.ListAttendance()[0].HasPresent(st.ID) {
		t.Fatalf("expected attendance history kept")
	}
	if _, ok := store.GetStudent(other.ID); !ok {
		t.Fatalf("unrelated student must survive")
	}

	h.monitor.Set(true)
	if res := h.svc.SyncNow(ctx); len(res.Remaining) != 0 {
		t.Fatalf("expected deletes drained, got %+v", res)
	}
	for _, probe := range []struct {
		table gateway.Table
		id    string
	}{{gateway.TableFees, fee.ID}, {gateway.TableExams, exam.ID}, {gateway.TableStudents, st.ID}} {
		if _, ok := h.gw.Get(probe.table, probe.id); ok {
			t.Fatalf("expected %s/%s deleted remotely", probe.table, probe.id)
		}
	}
	if _, ok := h.gw.Get(gateway.TableAttendance, rec.ID); !ok {
		t.Fatalf("expected remote attendance kept")
	}

	if _, err := h.svc.DeleteStudent(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestSuspensionKeepsHistoryAndLeavesRoll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, day(2024, time.February, 10))
	st := mustStudent(t, h.svc, Student{Name: "Pasan", Grade: "8", JoinedDate: timePtr(day(2024, time.January, 1))})
	if _, _, err := h.svc.RecordPayment(ctx, FeeRecord{StudentID: st.ID, Amount: decimal.NewFromInt(900)}); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if h.svc.Dashboard().OverdueCount != 1 {
		t.Fatalf("expected February cycle overdue")
	}

	suspended, _, err := h.svc.SetStudentStatus(ctx, st.ID, StudentTemporarySuspended)
	if err != nil || !suspended.IsSuspended() {
		t.Fatalf("suspend: %v", err)
	}
	dash := h.svc.Dashboard()
	if dash.ActiveStudents != 0 || dash.OverdueCount != 0 || dash.TotalStudents != 1 {
		t.Fatalf("expected suspended student out of the roll, got %+v", dash)
	}
	if len(h.svc.OverdueStudents()) != 0 {
		t.Fatalf("suspended students are never overdue")
	}
	if len(h.svc.Store().ListFees()) != 1 {
		t.Fatalf("suspension must not touch fees")
	}

	if _, _, err := h.svc.SetStudentStatus(ctx, st.ID, StudentActive); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if len(h.svc.OverdueStudents()) != 1 {
		t.Fatalf("expected reactivated student overdue again")
	}
}

func TestMarkAbsenteeContactedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	today := day(2024, time.January, 13)
	h := newHarness(t, true, today)
	st := mustStudent(t, h.svc, Student{Name: "Hiruni", Grade: "9"})
	rec, _, err := h.svc.RecordAttendance(ctx, AttendanceRecord{ClassID: "Grade 9", Date: today})
	if err != nil {
		t.Fatalf("attendance: %v", err)
	}

	alerts, err := h.svc.AbsenceAlerts(rec.ID)
	if err != nil || len(alerts) != 1 || alerts[0].Contacted {
		t.Fatalf("expected one uncontacted absentee, got %+v %v", alerts, err)
	}

	for i := 0; i < 2; i++ {
		updated, err := h.svc.MarkAbsenteeContacted(ctx, rec.ID, st.ID)
		if err != nil {
			t.Fatalf("mark contacted #%d: %v", i, err)
		}
		if len(updated.ContactedAbsentees) != 1 || updated.ContactedAbsentees[0] != st.ID {
			t.Fatalf("expected single contacted entry, got %v", updated.ContactedAbsentees)
		}
	}
	got, _ := h.svc.Store().GetStudent(st.ID)
	if got.LastInquirySentDate == nil || !got.LastInquirySentDate.Equal(today) {
		t.Fatalf("expected inquiry date stamped, got %v", got.LastInquirySentDate)
	}
	alerts, _ = h.svc.AbsenceAlerts(rec.ID)
	if !alerts[0].Contacted {
		t.Fatalf("expected absentee reported contacted")
	}
	if _, err := h.svc.MarkAbsenteeContacted(ctx, rec.ID, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown student, got %v", err)
	}
}

func TestToggleAttendanceCancelledDropsExpectation(t *testing.T) {
	ctx := context.Background()
	today := day(2024, time.January, 13)
	h := newHarness(t, true, today)
	mustStudent(t, h.svc, Student{Name: "Lahiru", Grade: "10"})
	rec, _, err := h.svc.RecordAttendance(ctx, AttendanceRecord{ClassID: "10", Date: today})
	if err != nil {
		t.Fatalf("attendance: %v", err)
	}
	cancelled, err := h.svc.ToggleAttendanceCancelled(ctx, rec.ID)
	if err != nil || !cancelled.IsCancelled() {
		t.Fatalf("cancel: %+v %v", cancelled, err)
	}
	if alerts, _ := h.svc.AbsenceAlerts(rec.ID); len(alerts) != 0 {
		t.Fatalf("cancelled sessions have no absentees")
	}
	restored, err := h.svc.ToggleAttendanceCancelled(ctx, rec.ID)
	if err != nil || restored.IsCancelled() {
		t.Fatalf("restore: %+v %v", restored, err)
	}
}

func TestAbsenceStreaksOrdering(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, day(2024, time.January, 14))
	a := mustStudent(t, h.svc, Student{Name: "Anjana", Grade: "5"})
	b := mustStudent(t, h.svc, Student{Name: "Bimsara", Grade: "5"})
	c := mustStudent(t, h.svc, Student{Name: "Chamodi", Grade: "5"})
	// Jan 6 (Sat), 7 (Sun), 13 (Sat), 14 (Sun): a misses all four, b misses the last two.
	for _, d := range []int{6, 7, 13, 14} {
		present := []string{c.ID}
		if d < 13 {
			present = append(present, b.ID)
		}
		if _, _, err := h.svc.RecordAttendance(ctx, AttendanceRecord{ClassID: "5", Date: day(2024, time.January, d), StudentIDsPresent: present}); err != nil {
			t.Fatalf("attendance: %v", err)
		}
	}
	streaks := h.svc.AbsenceStreaks(2)
	if len(streaks) != 2 {
		t.Fatalf("expected two students at threshold, got %+v", streaks)
	}
	if streaks[0].Student.ID != a.ID || streaks[0].Streak != 4 {
		t.Fatalf("expected Anjana first with 4, got %+v", streaks[0])
	}
	if streaks[1].Student.ID != b.ID || streaks[1].Streak != 2 {
		t.Fatalf("expected Bimsara second with 2, got %+v", streaks[1])
	}
	if len(h.svc.AbsenceStreaks(3)) != 1 {
		t.Fatalf("expected threshold to filter")
	}
}

func TestPossibleDuplicatesNormalisesPhones(t *testing.T) {
	h := newHarness(t, true, day(2024, time.February, 10))
	mustStudent(t, h.svc, Student{Name: "Sanduni", ParentPhone: "077 123 4567"})
	mustStudent(t, h.svc, Student{Name: "Other", Phone: "0711111111"})

	matches := h.svc.PossibleDuplicates("+94 77-123-4567", "sanduni")
	if len(matches) != 1 || !matches[0].SameName {
		t.Fatalf("expected one same-name match, got %+v", matches)
	}
	if got := h.svc.PossibleDuplicates("771234567", "Someone Else"); len(got) != 1 || got[0].SameName {
		t.Fatalf("expected phone-only match, got %+v", got)
	}
	if got := h.svc.PossibleDuplicates("", "Sanduni"); got != nil {
		t.Fatalf("expected no match for empty phone")
	}
	if _, _, err := h.svc.CreateStudent(context.Background(), Student{Name: "Sanduni", ParentPhone: "0771234567"}); err != nil {
		t.Fatalf("duplicates must not block creation: %v", err)
	}
}

func TestClassLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, day(2024, time.January, 13))
	class, _, err := h.svc.CreateClass(ctx, ClassGroup{Name: " Grade 6 Maths ", DayOfWeek: time.Saturday, StartTime: "08:00", Schedule: "8:00 AM - 10:00 AM"})
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	if class.Name != "Grade 6 Maths" {
		t.Fatalf("expected trimmed name, got %q", class.Name)
	}
	if _, _, err := h.svc.CreateClass(ctx, ClassGroup{Name: "Bad", StartTime: "25:99"}); err == nil {
		t.Fatalf("expected bad start time rejected")
	}
	running := h.svc.ClassesInProgress(time.Date(2024, time.January, 13, 9, 0, 0, 0, time.UTC))
	if len(running) != 1 || running[0].ID != class.ID {
		t.Fatalf("expected class in progress, got %+v", running)
	}
	if got := h.svc.ClassesInProgress(time.Date(2024, time.January, 13, 11, 0, 0, 0, time.UTC)); len(got) != 0 {
		t.Fatalf("expected no class after the window, got %+v", got)
	}
	if _, _, err := h.svc.UpdateClass(ctx, class.ID, func(c *ClassGroup) error {
		c.EndTime = "11:30"
		return nil
	}); err != nil {
		t.Fatalf("update class: %v", err)
	}
	if _, err := h.svc.DeleteClass(ctx, class.ID); err != nil {
		t.Fatalf("delete class: %v", err)
	}
	if _, ok := h.gw.Get(gateway.TableClasses, class.ID); ok {
		t.Fatalf("expected class removed remotely")
	}
}

func TestServiceRecordsMetrics(t *testing.T) {
	metrics := observability.NewExpvarMetricsRecorder("")
	h := newHarness(t, true, day(2024, time.February, 10), WithMetrics(metrics))
	mustStudent(t, h.svc, Student{Name: "Metric"})
	_, _, _ = h.svc.RecordPayment(context.Background(), FeeRecord{StudentID: "ghost", Amount: decimal.NewFromInt(1)})
	results := metrics.Snapshot().Results
	if results["student.create"]["success"] != 1 {
		t.Fatalf("expected student.create success, got %+v", results)
	}
	if results["fee.create"]["error"] != 1 {
		t.Fatalf("expected fee.create error, got %+v", results)
	}
}

func TestNewServiceWithoutCoordinatorQueuesLocally(t *testing.T) {
	svc := NewInMemoryService(NewDefaultRulesEngine())
	if _, _, err := svc.CreateStudent(context.Background(), Student{Name: "Solo"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if svc.PendingSync() != 1 || svc.Coordinator().Online() {
		t.Fatalf("expected offline-only service to queue")
	}
}
