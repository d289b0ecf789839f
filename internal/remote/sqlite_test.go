package remote

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/session"
)

func init() {
	hashCost = bcrypt.MinCost
}

var bob = session.Credentials{UserID: "bob", Password: "hunter2"}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "neurapath.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func fetchIDs(t *testing.T, fetch func(context.Context, string) ([]byte, error), user string) []string {
	t.Helper()
	raw, err := fetch(context.Background(), user)
	if err != nil {
		t.Fatalf("FetchDatabase(%q) error = %v", user, err)
	}
	db, err := domain.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	ids := []string{}
	for _, r := range db.Items {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestSQLiteRecords(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	if got := fetchIDs(t, db.FetchDatabase, "bob"); len(got) != 0 {
		t.Fatalf("unknown user should have no records, got %v", got)
	}

	prof := domain.DefaultProfile()
	payload := domain.Payload{
		Records: []domain.Record{
			{ID: "b", ContentType: domain.Folder},
			{ID: "a", ContentType: domain.Folder},
		},
		Profile: &prof,
	}
	if err := db.SaveDatabase(ctx, bob, payload); err != nil {
		t.Fatalf("SaveDatabase() error = %v", err)
	}
	if got := fetchIDs(t, db.FetchDatabase, "bob"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("after save = %v", got)
	}

	if err := db.CreateRecord(ctx, bob, domain.Record{ID: "a/x", ContentType: domain.Extract}); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if err := db.UpdateRecord(ctx, bob, domain.Record{ID: "a/x", ContentType: domain.Extract, IsFlagged: true}); err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	if err := db.DeleteRecord(ctx, bob, "b"); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	if err := db.DeleteRecord(ctx, bob, "never-existed"); err != nil {
		t.Errorf("deleting a missing record should succeed, got %v", err)
	}

	raw, _ := db.FetchDatabase(ctx, "bob")
	got, _ := domain.Normalize(raw)
	if len(got.Items) != 2 || got.Items[1].ID != "a/x" || !got.Items[1].IsFlagged {
		t.Errorf("unexpected records %+v", got.Items)
	}
	if got.Profile == nil || got.Profile.Theme != "day" {
		t.Errorf("profile not round-tripped: %+v", got.Profile)
	}

	// Other users are unaffected.
	if got := fetchIDs(t, db.FetchDatabase, "carol"); len(got) != 0 {
		t.Errorf("carol sees %v", got)
	}
}

func TestSQLiteAccounts(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	if err := db.Register(ctx, bob); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := db.Register(ctx, bob); !errors.Is(err, ErrUserExists) {
		t.Errorf("second Register() = %v, want ErrUserExists", err)
	}
	if err := db.Register(ctx, session.Credentials{UserID: "nopass"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Register without password = %v", err)
	}

	testCases := []struct {
		name string
		cred session.Credentials
		want error
	}{
		{name: "correct password", cred: bob, want: nil},
		{name: "wrong password", cred: session.Credentials{UserID: "bob", Password: "nope"}, want: ErrUnauthorized},
		{name: "unknown user", cred: session.Credentials{UserID: "eve", Password: "x"}, want: ErrUnauthorized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := db.Authenticate(ctx, tc.cred); !errors.Is(err, tc.want) {
				t.Errorf("Authenticate() = %v, want %v", err, tc.want)
			}
		})
	}

	if public, err := db.IsPublic(ctx, "bob"); err != nil || public {
		t.Errorf("new account IsPublic = (%v, %v)", public, err)
	}
	if err := db.SetPublic(ctx, "bob", true); err != nil {
		t.Fatalf("SetPublic() error = %v", err)
	}
	users, err := db.PublicUsers(ctx)
	if err != nil || !reflect.DeepEqual(users, []string{"bob"}) {
		t.Errorf("PublicUsers() = (%v, %v)", users, err)
	}
	if err := db.SetPublic(ctx, "eve", true); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("SetPublic(unknown) = %v", err)
	}

	if err := db.CreateRecord(ctx, bob, domain.Record{ID: "a", ContentType: domain.Folder}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteAccount(ctx, "bob"); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}
	if err := db.Authenticate(ctx, bob); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("deleted account still authenticates: %v", err)
	}
	if got := fetchIDs(t, db.FetchDatabase, "bob"); len(got) != 0 {
		t.Errorf("deleted account still has records %v", got)
	}
}
