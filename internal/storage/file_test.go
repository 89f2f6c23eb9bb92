package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	logx "mcwatch/pkg/logx"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "status.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func msgRecord(addr string) Record {
	return Record{ServerAddress: addr, ChannelID: 100, MessageID: 7, EndInterval: 900000}
}

func chanRecord(addr string) Record {
	return Record{ServerAddress: addr, ChannelID: 200, Prefix: "online-"}
}

func TestEnsureExistsThenLoadEmpty(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.EnsureExists(ctx); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	jobs, err := st.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected empty state, got %+v", jobs)
	}
	// Calling again must be a no-op.
	if err := st.EnsureExists(ctx); err != nil {
		t.Fatalf("second EnsureExists: %v", err)
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	p := Jobs{KindMessage: {"id1": msgRecord("mc.example.com")}}
	if err := st.SaveJobs(ctx, p); err != nil {
		t.Fatalf("first save: %v", err)
	}
	first, err := st.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if err := st.SaveJobs(ctx, p); err != nil {
		t.Fatalf("second save: %v", err)
	}
	second, err := st.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("idempotence broken:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestSaveMergesAcrossCategories(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveJobs(ctx, Jobs{KindMessage: {"id1": msgRecord("a.example")}}); err != nil {
		t.Fatalf("save message job: %v", err)
	}
	if err := st.SaveJobs(ctx, Jobs{KindChannel: {"id2": chanRecord("b.example")}}); err != nil {
		t.Fatalf("save channel job: %v", err)
	}

	jobs, err := st.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if jobs[KindMessage]["id1"].ServerAddress != "a.example" {
		t.Fatalf("message job lost: %+v", jobs)
	}
	if jobs[KindChannel]["id2"].ServerAddress != "b.example" {
		t.Fatalf("channel job lost: %+v", jobs)
	}
}

func TestSaveReplacesRecordWholesale(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	r1 := msgRecord("a.example")
	if err := st.SaveJobs(ctx, Jobs{KindMessage: {"id1": r1}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	r2 := Record{ServerAddress: "a.example", ChannelID: 100, MessageID: 7, EndInterval: 120000}
	if err := st.SaveJobs(ctx, Jobs{KindMessage: {"id1": r2}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	jobs, _ := st.LoadJobs(ctx)
	got := jobs[KindMessage]["id1"]
	if got.EndInterval != 120000 {
		t.Fatalf("record not replaced: %+v", got)
	}
}

func TestRemoveJobIsTotal(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveJobs(ctx, Jobs{
		KindMessage: {"id1": msgRecord("a.example")},
		KindChannel: {"id2": chanRecord("b.example")},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := st.RemoveJob(ctx, "id2"); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	jobs, err := st.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	for kind, bucket := range jobs {
		if _, ok := bucket["id2"]; ok {
			t.Fatalf("id2 still present in %s", kind)
		}
	}
	if _, ok := jobs[KindChannel]; ok {
		t.Fatal("empty category should be dropped")
	}
	if jobs[KindMessage]["id1"].ServerAddress != "a.example" {
		t.Fatal("unrelated job vanished")
	}

	// Removing again is a no-op, not an error.
	if err := st.RemoveJob(ctx, "id2"); err != nil {
		t.Fatalf("second RemoveJob: %v", err)
	}
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "status.json")
	body := `{
		"serverStatuses": {
			"good": {"serverAddress": "mc.example.com", "channelId": 1, "messageId": 2, "endInterval": 900000},
			"bad":  {"serverAddress": "", "channelId": 0}
		},
		"legacyStuff": {"x": {}}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	jobs, err := st.LoadJobs(context.Background())
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if len(jobs[KindMessage]) != 1 {
		t.Fatalf("expected only the good record, got %+v", jobs)
	}
	if _, ok := jobs[KindMessage]["good"]; !ok {
		t.Fatal("good record dropped")
	}
}

func TestSaveKeepsUnknownCategoriesOnDisk(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "status.json")
	if err := os.WriteFile(path, []byte(`{"legacyStuff": {"x": {"a": 1}}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.SaveJobs(context.Background(), Jobs{KindMessage: {"id1": msgRecord("a.example")}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("document corrupt: %v", err)
	}
	if _, ok := doc["legacyStuff"]; !ok {
		t.Fatal("save destroyed an unrelated category")
	}
}

func TestRecordValidate(t *testing.T) {
	t.Parallel()
	if err := msgRecord("a").Validate(KindMessage); err != nil {
		t.Fatalf("valid message record rejected: %v", err)
	}
	if err := chanRecord("a").Validate(KindChannel); err != nil {
		t.Fatalf("valid channel record rejected: %v", err)
	}
	if err := (Record{ChannelID: 1, MessageID: 2}).Validate(KindMessage); err == nil {
		t.Fatal("missing address should fail")
	}
	if err := (Record{ServerAddress: "a", ChannelID: 1}).Validate(KindMessage); err == nil {
		t.Fatal("missing messageId should fail")
	}
	if err := (Record{ServerAddress: "a", ChannelID: 1}).Validate(KindChannel); err == nil {
		t.Fatal("missing prefix should fail")
	}
	if err := msgRecord("a").Validate(Kind("weird")); err == nil {
		t.Fatal("unknown kind should fail")
	}
}

func TestLifetimeDefault(t *testing.T) {
	t.Parallel()
	r := Record{}
	if got := r.Lifetime(); got.Milliseconds() != DefaultLifetimeMS {
		t.Fatalf("default lifetime = %v", got)
	}
	r.EndInterval = 120000
	if got := r.Lifetime().Milliseconds(); got != 120000 {
		t.Fatalf("lifetime = %dms, want 120000ms", got)
	}
}
