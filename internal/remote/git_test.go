package remote

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-git/go-git/v5"

	"github.com/conorfennell/neurapath/internal/domain"
)

func TestGitLocalRepository(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	g, err := OpenGit(dir, "", nil)
	if err != nil {
		t.Fatalf("OpenGit() error = %v", err)
	}
	ctx := context.Background()

	if got := fetchIDs(t, g.FetchDatabase, "bob"); len(got) != 0 {
		t.Fatalf("new repository should be empty, got %v", got)
	}

	if err := g.SaveDatabase(ctx, bob, domain.Payload{Records: []domain.Record{{ID: "a", ContentType: domain.Folder}}}); err != nil {
		t.Fatalf("SaveDatabase() error = %v", err)
	}
	if err := g.CreateRecord(ctx, bob, domain.Record{ID: "a/b", ContentType: domain.Extract}); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if err := g.UpdateRecord(ctx, bob, domain.Record{ID: "a/b", ContentType: domain.Extract, IsFlagged: true}); err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	if err := g.DeleteRecord(ctx, bob, "a"); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	// Writing the same content again must not fail on an empty commit.
	if err := g.DeleteRecord(ctx, bob, "a"); err != nil {
		t.Fatalf("repeated DeleteRecord() error = %v", err)
	}

	if got := fetchIDs(t, g.FetchDatabase, "bob"); !reflect.DeepEqual(got, []string{"a/b"}) {
		t.Errorf("records = %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "bob.json")); err != nil {
		t.Errorf("expected bob.json in the work tree: %v", err)
	}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatal(err)
	}
	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		t.Fatal(err)
	}
	commits := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		commits++
	}
	if commits != 4 {
		t.Errorf("commits = %d, want 4", commits)
	}
}

func TestGitWithOrigin(t *testing.T) {
	origin := filepath.Join(t.TempDir(), "origin.git")
	if _, err := git.PlainInit(origin, true); err != nil {
		t.Fatalf("init bare origin: %v", err)
	}
	ctx := context.Background()

	writer, err := OpenGit(filepath.Join(t.TempDir(), "writer"), origin, nil)
	if err != nil {
		t.Fatalf("OpenGit(writer) error = %v", err)
	}
	if err := writer.CreateRecord(ctx, bob, domain.Record{ID: "shared", ContentType: domain.Folder}); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	reader, err := OpenGit(filepath.Join(t.TempDir(), "reader"), origin, nil)
	if err != nil {
		t.Fatalf("OpenGit(reader) error = %v", err)
	}
	if got := fetchIDs(t, reader.FetchDatabase, "bob"); !reflect.DeepEqual(got, []string{"shared"}) {
		t.Fatalf("reader sees %v after clone", got)
	}

	if err := writer.CreateRecord(ctx, bob, domain.Record{ID: "shared/more", ContentType: domain.Extract}); err != nil {
		t.Fatalf("second CreateRecord() error = %v", err)
	}
	if got := fetchIDs(t, reader.FetchDatabase, "bob"); !reflect.DeepEqual(got, []string{"shared", "shared/more"}) {
		t.Errorf("reader sees %v after pull", got)
	}
}

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		url  string
		want string
	}{
		{url: "https://github.com/user/notes.git", want: filepath.Join("repos", "github.com", "user", "notes")},
		{url: "git@github.com:user/notes.git", want: filepath.Join("repos", "github.com", "user", "notes")},
		{url: "file:///srv/git/notes.git", want: filepath.Join("repos", "local", "notes")},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			if err != nil {
				t.Fatalf("LocalPath() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("LocalPath() = %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := LocalPath("repos", "not a url"); err == nil {
		t.Error("expected an error for an unparseable URL")
	}
}
