package server_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/remote"
	"github.com/conorfennell/neurapath/internal/server"
	"github.com/conorfennell/neurapath/internal/session"
	"github.com/conorfennell/neurapath/internal/store"
	"github.com/conorfennell/neurapath/internal/sync"
)

var (
	alice = session.Credentials{UserID: "alice", Password: "wonderland"}
	bob   = session.Credentials{UserID: "bob", Password: "builder"}
)

func newTestServer(t *testing.T) (*httptest.Server, *remote.HTTP) {
	t.Helper()
	db, err := remote.OpenSQLite(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(server.NewServer(db, logger))
	t.Cleanup(ts.Close)
	return ts, remote.NewHTTP(ts.URL, 0)
}

func fetchIDs(t *testing.T, ctx context.Context, client *remote.HTTP, user string) []string {
	t.Helper()
	raw, err := client.FetchDatabase(ctx, user)
	if err != nil {
		t.Fatalf("FetchDatabase(%q) error = %v", user, err)
	}
	db, err := domain.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	out := []string{}
	for _, r := range db.Items {
		out = append(out, r.ID)
	}
	return out
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAccounts(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	if err := client.Register(ctx, alice); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := client.Register(ctx, alice); !errors.Is(err, remote.ErrUserExists) {
		t.Errorf("second Register() = %v, want ErrUserExists", err)
	}
	if err := client.Authenticate(ctx, alice); err != nil {
		t.Errorf("Authenticate() error = %v", err)
	}
	wrong := session.Credentials{UserID: "alice", Password: "nope"}
	if err := client.Authenticate(ctx, wrong); !errors.Is(err, remote.ErrUnauthorized) {
		t.Errorf("Authenticate(wrong) = %v, want ErrUnauthorized", err)
	}

	if err := client.DeleteAccount(ctx, alice); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}
	if err := client.Authenticate(ctx, alice); !errors.Is(err, remote.ErrUnauthorized) {
		t.Errorf("deleted account authenticates: %v", err)
	}
}

func TestRecordEndpoints(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	if err := client.Register(ctx, alice); err != nil {
		t.Fatal(err)
	}

	if err := client.CreateRecord(ctx, alice, domain.Record{ID: "a", ContentType: domain.Folder}); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if err := client.CreateRecord(ctx, alice, domain.Record{ID: "a/b", ContentType: domain.Extract}); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if err := client.UpdateRecord(ctx, alice, domain.Record{ID: "a/b", ContentType: domain.Extract, IsFlagged: true}); err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	if err := client.DeleteRecord(ctx, alice, "a"); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}

	own := session.NewContext(ctx, alice)
	if got := fetchIDs(t, own, client, "alice"); !reflect.DeepEqual(got, []string{"a/b"}) {
		t.Errorf("records = %v", got)
	}

	err := client.CreateRecord(ctx, alice, domain.Record{ID: "bad/", ContentType: domain.Folder})
	if !remote.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("invalid record = %v, want 400", err)
	}
	if err := client.CreateRecord(ctx, bob, domain.Record{ID: "x", ContentType: domain.Folder}); !errors.Is(err, remote.ErrUnauthorized) {
		t.Errorf("unregistered user = %v, want ErrUnauthorized", err)
	}
}

func TestSaveSanitisesContent(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	if err := client.Register(ctx, alice); err != nil {
		t.Fatal(err)
	}

	payload := domain.Payload{Records: []domain.Record{{
		ID:          "x",
		ContentType: domain.Extract,
		Content:     []byte(`"<p>hi</p><script>alert(1)</script>"`),
	}}}
	if err := client.SaveDatabase(ctx, alice, payload); err != nil {
		t.Fatalf("SaveDatabase() error = %v", err)
	}

	raw, err := client.FetchDatabase(session.NewContext(ctx, alice), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "script") {
		t.Errorf("script survived sanitising: %s", raw)
	}
	if !strings.Contains(string(raw), "hi") {
		t.Errorf("text lost while sanitising: %s", raw)
	}
}

func TestVisibility(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	for _, cred := range []session.Credentials{alice, bob} {
		if err := client.Register(ctx, cred); err != nil {
			t.Fatal(err)
		}
	}
	if err := client.CreateRecord(ctx, alice, domain.Record{ID: "notes", ContentType: domain.Folder}); err != nil {
		t.Fatal(err)
	}

	if _, err := client.FetchDatabase(session.NewContext(ctx, bob), "alice"); !errors.Is(err, remote.ErrForbidden) {
		t.Errorf("private database read by another user = %v, want ErrForbidden", err)
	}
	if _, err := client.FetchDatabase(ctx, "nobody"); !errors.Is(err, remote.ErrUnknownUser) {
		t.Errorf("unknown user = %v, want ErrUnknownUser", err)
	}

	if err := client.SetPublic(ctx, alice, true); err != nil {
		t.Fatalf("SetPublic() error = %v", err)
	}
	if got := fetchIDs(t, ctx, client, "alice"); !reflect.DeepEqual(got, []string{"notes"}) {
		t.Errorf("public records = %v", got)
	}
	users, err := client.PublicDatabases(ctx)
	if err != nil || !reflect.DeepEqual(users, []string{"alice"}) {
		t.Errorf("PublicDatabases() = (%v, %v)", users, err)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/user/data", nil)
	req.Header.Set("Origin", "https://app.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}
}

// A full client round trip: log in, edit locally, replicate, log in again
// from a fresh store and see the same tree.
func TestStoreAgainstServer(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	if err := client.Register(ctx, alice); err != nil {
		t.Fatal(err)
	}

	first := store.New(store.WithRemote(client))
	ctrl := sync.NewController(first, sync.WithAuthenticator(client))
	if err := ctrl.Login(ctx, alice); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	sctx := ctrl.Context(ctx)

	for _, rec := range []domain.Record{
		{ID: "bio", ContentType: domain.Folder},
		{ID: "bio/cell", ContentType: domain.Extract, Content: domain.TextContent("the cell is the unit of life")},
		{ID: "chem", ContentType: domain.Folder},
	} {
		if err := first.AddRecord(sctx, rec); err != nil {
			t.Fatalf("AddRecord(%s) error = %v", rec.ID, err)
		}
	}
	if _, err := first.AddCloze(sctx, "bio/cell", domain.ClozeSpan{Text: "cell", StartOffset: 4, StopOffset: 8}); err != nil {
		t.Fatalf("AddCloze() error = %v", err)
	}
	if err := first.MoveItem(sctx, "bio", "chem"); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if err := ctrl.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want := ids(first.Records())

	second := store.New(store.WithRemote(client))
	if err := sync.NewController(second).Login(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if got := ids(second.Records()); !reflect.DeepEqual(got, want) {
		t.Errorf("second client sees %v, want %v", got, want)
	}
	if _, ok := second.GetRecordByID("chem/bio/cell"); !ok {
		t.Error("moved record missing on second client")
	}

	if err := ctrl.Login(ctx, session.Credentials{UserID: "alice", Password: "bad"}); err == nil {
		t.Error("Login with a wrong password should fail")
	}
}

func ids(records []domain.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
