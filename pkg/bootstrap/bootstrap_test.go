package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruslano69/geoimport/pkg/retry"
)

var (
	errInUse    = errors.New("resource in use")
	errNotFound = errors.New("resource not found")
	errDenied   = errors.New("access denied")
)

// fakeAdmin replays scripted results; once a script runs out, calls succeed
// unless always is set.
type fakeAdmin struct {
	createErrs   []error
	deleteErrs   []error
	deleteAlways error

	creates int
	deletes int
	calls   []string
}

func (f *fakeAdmin) CreateTable(ctx context.Context, desc Descriptor) error {
	f.creates++
	f.calls = append(f.calls, "create")
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAdmin) DeleteTable(ctx context.Context, name string) error {
	f.deletes++
	f.calls = append(f.calls, "delete")
	if f.deleteAlways != nil {
		return f.deleteAlways
	}
	if len(f.deleteErrs) > 0 {
		err := f.deleteErrs[0]
		f.deleteErrs = f.deleteErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAdmin) Classify(err error) Class {
	switch {
	case errors.Is(err, errInUse):
		return Conflict
	case errors.Is(err, errNotFound):
		return NotFound
	default:
		return Other
	}
}

var cityTable = Descriptor{
	Name: "city",
	Key: []KeyElement{
		{Field: "CountryCode", Role: Partition},
		{Field: "NameId", Role: Sort},
	},
	Capacity: Capacity{Read: 5, Write: 5},
}

func newTestBootstrapper(admin Admin, delays *[]time.Duration) *Bootstrapper {
	return New(admin).WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	})
}

func TestEnsureTable_CreatedFirstTime(t *testing.T) {
	admin := &fakeAdmin{}
	var delays []time.Duration

	got, err := newTestBootstrapper(admin, &delays).EnsureTable(context.Background(), cityTable)
	if err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	if got.Name != "city" || got.KeyField(Sort) != "NameId" {
		t.Errorf("EnsureTable() = %+v, want the city descriptor", got)
	}
	if admin.creates != 1 || admin.deletes != 0 {
		t.Errorf("creates/deletes = %d/%d, want 1/0", admin.creates, admin.deletes)
	}
	if len(delays) != 0 {
		t.Errorf("delays = %v, want none", delays)
	}
}

func TestEnsureTable_ConflictDeletesOnceThenRecreates(t *testing.T) {
	admin := &fakeAdmin{createErrs: []error{errInUse}}
	var delays []time.Duration

	if _, err := newTestBootstrapper(admin, &delays).EnsureTable(context.Background(), cityTable); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}

	want := []string{"create", "delete", "create"}
	if len(admin.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", admin.calls, want)
	}
	for i := range want {
		if admin.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, admin.calls[i], want[i])
		}
	}
}

func TestEnsureTable_DeleteAlwaysConflicts(t *testing.T) {
	admin := &fakeAdmin{
		createErrs:   []error{errInUse},
		deleteAlways: errInUse,
	}
	var delays []time.Duration

	_, err := newTestBootstrapper(admin, &delays).EnsureTable(context.Background(), cityTable)
	if !errors.Is(err, retry.ErrTooManyAttempts) {
		t.Fatalf("EnsureTable() error = %v, want ErrTooManyAttempts", err)
	}
	if admin.deletes != 5 {
		t.Errorf("delete attempts = %d, want 5", admin.deletes)
	}
	if admin.creates != 1 {
		t.Errorf("create attempts = %d, want 1", admin.creates)
	}
	// Фиксированная пауза 5s между попытками удаления
	if len(delays) != 4 {
		t.Fatalf("delays = %v, want 4 waits", delays)
	}
	for _, d := range delays {
		if d != 5*time.Second {
			t.Errorf("delay = %v, want 5s", d)
		}
	}
}

func TestEnsureTable_DeleteConflictThenSucceeds(t *testing.T) {
	admin := &fakeAdmin{
		createErrs: []error{errInUse},
		deleteErrs: []error{errInUse, errInUse},
	}
	var delays []time.Duration

	if _, err := newTestBootstrapper(admin, &delays).EnsureTable(context.Background(), cityTable); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	if admin.deletes != 3 || admin.creates != 2 {
		t.Errorf("deletes/creates = %d/%d, want 3/2", admin.deletes, admin.creates)
	}
	if len(delays) != 2 {
		t.Errorf("delays = %v, want 2 waits", delays)
	}
}

func TestEnsureTable_DeleteNotFoundIsSuccess(t *testing.T) {
	admin := &fakeAdmin{
		createErrs: []error{errInUse},
		deleteErrs: []error{errNotFound},
	}
	var delays []time.Duration

	if _, err := newTestBootstrapper(admin, &delays).EnsureTable(context.Background(), cityTable); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	if admin.deletes != 1 {
		t.Errorf("delete attempts = %d, want 1", admin.deletes)
	}
	if len(delays) != 0 {
		t.Errorf("delays = %v, want none", delays)
	}
}

func TestEnsureTable_FatalErrors(t *testing.T) {
	tests := []struct {
		name        string
		admin       *fakeAdmin
		wantCreates int
		wantDeletes int
	}{
		{
			name:        "create fails",
			admin:       &fakeAdmin{createErrs: []error{errDenied}},
			wantCreates: 1,
		},
		{
			name:        "delete fails",
			admin:       &fakeAdmin{createErrs: []error{errInUse}, deleteErrs: []error{errDenied}},
			wantCreates: 1,
			wantDeletes: 1,
		},
		{
			name:        "recreate fails",
			admin:       &fakeAdmin{createErrs: []error{errInUse, errDenied}},
			wantCreates: 2,
			wantDeletes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var delays []time.Duration
			_, err := newTestBootstrapper(tt.admin, &delays).EnsureTable(context.Background(), cityTable)
			if !errors.Is(err, errDenied) {
				t.Fatalf("EnsureTable() error = %v, want errDenied", err)
			}
			if errors.Is(err, retry.ErrTooManyAttempts) {
				t.Errorf("EnsureTable() error = %v, fatal errors must not be retried", err)
			}
			if tt.admin.creates != tt.wantCreates || tt.admin.deletes != tt.wantDeletes {
				t.Errorf("creates/deletes = %d/%d, want %d/%d",
					tt.admin.creates, tt.admin.deletes, tt.wantCreates, tt.wantDeletes)
			}
			if len(delays) != 0 {
				t.Errorf("delays = %v, want none", delays)
			}
		})
	}
}

func TestEnsureTable_RecreateConflictIsBounded(t *testing.T) {
	// Удаление всегда успешно, но создание каждый раз конфликтует
	conflicts := make([]error, 100)
	for i := range conflicts {
		conflicts[i] = errInUse
	}
	admin := &fakeAdmin{createErrs: conflicts}
	var delays []time.Duration

	_, err := newTestBootstrapper(admin, &delays).EnsureTable(context.Background(), cityTable)
	if !errors.Is(err, retry.ErrTooManyAttempts) {
		t.Fatalf("EnsureTable() error = %v, want ErrTooManyAttempts", err)
	}
	if admin.creates != 6 || admin.deletes != 5 {
		t.Errorf("creates/deletes = %d/%d, want 6/5", admin.creates, admin.deletes)
	}
}

func TestEnsureTable_StateIsPerCall(t *testing.T) {
	b := New(&fakeAdmin{}).WithSleep(func(ctx context.Context, d time.Duration) error { return nil })

	for i := 0; i < 3; i++ {
		admin := &fakeAdmin{
			createErrs: []error{errInUse},
			deleteErrs: []error{errInUse, errInUse, errInUse},
		}
		b.admin = admin
		// Четыре удаления на вызов укладываются в бюджет только если он не общий
		if _, err := b.EnsureTable(context.Background(), cityTable); err != nil {
			t.Fatalf("call %d: EnsureTable() error = %v", i+1, err)
		}
	}
}

func TestEnsureTable_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	admin := &fakeAdmin{createErrs: []error{errInUse}, deleteAlways: errInUse}
	_, err := New(admin).EnsureTable(ctx, cityTable)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("EnsureTable() error = %v, want context.Canceled", err)
	}
	if admin.deletes != 1 {
		t.Errorf("delete attempts = %d, want 1", admin.deletes)
	}
}

func TestClass_String(t *testing.T) {
	tests := map[Class]string{Conflict: "conflict", NotFound: "not_found", Other: "other"}
	for c, want := range tests {
		if got := c.String(); got != want {
			t.Errorf("Class(%d).String() = %q, want %q", c, got, want)
		}
	}
}
