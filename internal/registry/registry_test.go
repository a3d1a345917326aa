package registry

import (
	"sync"
	"testing"

	"classchat/internal/db"
	"classchat/internal/event"
	"classchat/internal/models"

	"gorm.io/gorm"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (f *fakePublisher) Publish(e event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakePublisher) statuses() []event.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.Status
	for _, e := range f.events {
		if s, ok := e.(event.Status); ok {
			out = append(out, s)
		}
	}
	return out
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect("host=localhost user=postgres password=postgres dbname=classchat_test port=5432 sslmode=disable TimeZone=UTC")
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	t.Cleanup(func() {
		gdb.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Instance{})
	})
	return gdb
}

func TestAnnounceAndWithdraw(t *testing.T) {
	gdb := testDB(t)
	pub := &fakePublisher{}
	reg := New(gdb, pub)

	if err := reg.Announce("10.0.0.5:3001"); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	addrs, err := reg.ListAvailable()
	if err != nil {
		t.Fatalf("ListAvailable() error = %v", err)
	}
	if len(addrs) != 1 || addrs[0] != "10.0.0.5:3001" {
		t.Errorf("ListAvailable() = %v, want [10.0.0.5:3001]", addrs)
	}

	if err := reg.Withdraw("10.0.0.5:3001"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	addrs, err = reg.ListAvailable()
	if err != nil {
		t.Fatalf("ListAvailable() error = %v", err)
	}
	if len(addrs) != 0 {
		t.Errorf("ListAvailable() after withdraw = %v, want empty", addrs)
	}

	// the table writes are mirrored as status events
	statuses := pub.statuses()
	if len(statuses) != 2 {
		t.Fatalf("status events = %d, want 2", len(statuses))
	}
	if statuses[0].IP != "10.0.0.5:3001" || !statuses[0].Status {
		t.Errorf("announce status = %+v", statuses[0])
	}
	if statuses[1].IP != "10.0.0.5:3001" || statuses[1].Status {
		t.Errorf("withdraw status = %+v", statuses[1])
	}
}

func TestAnnounce_UpsertIsIdempotent(t *testing.T) {
	gdb := testDB(t)
	reg := New(gdb, &fakePublisher{})

	for i := 0; i < 3; i++ {
		if err := reg.Announce("10.0.0.5:3001"); err != nil {
			t.Fatalf("Announce() #%d error = %v", i, err)
		}
	}

	var count int64
	gdb.Model(&models.Instance{}).Count(&count)
	if count != 1 {
		t.Errorf("instance rows = %d, want 1", count)
	}
}

// An instance that crashes without calling Withdraw stays listed
// forever: there is no heartbeat or TTL on registry entries.
func TestListAvailable_CrashLeavesStaleEntry(t *testing.T) {
	gdb := testDB(t)
	reg := New(gdb, &fakePublisher{})

	if err := reg.Announce("10.0.0.9:3001"); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	// no Withdraw: simulated crash

	addrs, err := reg.ListAvailable()
	if err != nil {
		t.Fatalf("ListAvailable() error = %v", err)
	}
	if len(addrs) != 1 || addrs[0] != "10.0.0.9:3001" {
		t.Errorf("ListAvailable() = %v, stale entry should remain", addrs)
	}
}

func TestListAvailable_MultipleInstances(t *testing.T) {
	gdb := testDB(t)
	reg := New(gdb, &fakePublisher{})

	for _, addr := range []string{"10.0.0.5:3001", "10.0.0.6:3001", "10.0.0.7:3001"} {
		if err := reg.Announce(addr); err != nil {
			t.Fatalf("Announce(%s) error = %v", addr, err)
		}
	}
	if err := reg.Withdraw("10.0.0.6:3001"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}

	addrs, err := reg.ListAvailable()
	if err != nil {
		t.Fatalf("ListAvailable() error = %v", err)
	}
	want := []string{"10.0.0.5:3001", "10.0.0.7:3001"}
	if len(addrs) != len(want) || addrs[0] != want[0] || addrs[1] != want[1] {
		t.Errorf("ListAvailable() = %v, want %v", addrs, want)
	}
}
