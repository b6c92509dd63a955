package journal

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/plumbing/transport/http"
	"github.com/go-git/go-git/v6/storage/filesystem"
)

// setupPushedJournal commits two entries to a file journal and pushes
// them to a new bare repository.
func setupPushedJournal(t *testing.T) (*Journal, string) {
	t.Helper()

	source, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create source journal: %v", err)
	}
	for _, statement := range []string{"CREATE TABLE t (id INTEGER)", "INSERT INTO t VALUES (1)"} {
		source.Record(statement)
		if _, err := source.Commit(testIdentity, "Autocommit"); err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}
	}

	bareDir := t.TempDir()
	bareStorer := filesystem.NewStorage(osfs.New(bareDir), cache.NewObjectLRUDefault())
	if _, err := git.Init(bareStorer); err != nil {
		t.Fatalf("Failed to init bare repo: %v", err)
	}

	if err := source.AddRemote(DefaultRemote, bareDir); err != nil {
		t.Fatalf("Failed to add remote: %v", err)
	}
	if err := source.Push(context.Background(), "", nil); err != nil {
		t.Fatalf("Failed to push: %v", err)
	}
	return source, bareDir
}

func TestRemotes(t *testing.T) {
	source, bareDir := setupPushedJournal(t)

	remotes, err := source.Remotes()
	if err != nil {
		t.Fatalf("Failed to list remotes: %v", err)
	}
	if len(remotes) != 1 || remotes[0].Name != DefaultRemote || remotes[0].URLs[0] != bareDir {
		t.Errorf("Expected origin -> %s, got %v", bareDir, remotes)
	}

	if err := source.AddRemote(DefaultRemote, bareDir); err == nil {
		t.Error("Expected error adding a duplicate remote")
	}

	if err := source.RemoveRemote(DefaultRemote); err != nil {
		t.Fatalf("Failed to remove remote: %v", err)
	}
	remotes, _ = source.Remotes()
	if len(remotes) != 0 {
		t.Errorf("Expected no remotes, got %v", remotes)
	}
}

func TestPushAlreadyUpToDate(t *testing.T) {
	source, _ := setupPushedJournal(t)

	if err := source.Push(context.Background(), DefaultRemote, nil); err != nil {
		t.Errorf("Expected second push to succeed, got %v", err)
	}
}

func TestFetch(t *testing.T) {
	source, bareDir := setupPushedJournal(t)

	replica, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create replica journal: %v", err)
	}
	if err := replica.AddRemote(DefaultRemote, bareDir); err != nil {
		t.Fatalf("Failed to add remote: %v", err)
	}
	if err := replica.Fetch(context.Background(), "", nil); err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}

	head, err := source.repo.Head()
	if err != nil {
		t.Fatalf("Failed to read source head: %v", err)
	}
	remoteRef, err := replica.repo.Reference(
		plumbing.NewRemoteReferenceName(DefaultRemote, head.Name().Short()), true)
	if err != nil {
		t.Fatalf("Failed to read fetched reference: %v", err)
	}
	if remoteRef.Hash() != head.Hash() {
		t.Errorf("Expected fetched head %s, got %s", head.Hash(), remoteRef.Hash())
	}
}

func TestPullWithPending(t *testing.T) {
	source, _ := setupPushedJournal(t)

	source.Record("INSERT INTO t VALUES (2)")
	if err := source.Pull(context.Background(), "", nil); err == nil {
		t.Error("Expected error pulling with pending statements")
	}
}

func TestRemoteNotInitialized(t *testing.T) {
	var journal *Journal

	if err := journal.AddRemote("origin", "/tmp/x"); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
	if err := journal.Push(context.Background(), "", nil); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestRemoteAuthMethod(t *testing.T) {
	var nilAuth *RemoteAuth
	if method, err := nilAuth.method(); method != nil || err != nil {
		t.Errorf("Expected no auth for nil, got %v, %v", method, err)
	}

	method, err := (&RemoteAuth{Type: AuthTypeToken, Token: "secret"}).method()
	if err != nil {
		t.Fatalf("Failed to build token auth: %v", err)
	}
	basic, ok := method.(*http.BasicAuth)
	if !ok || basic.Username != "git" || basic.Password != "secret" {
		t.Errorf("Expected basic auth git:secret, got %v", method)
	}

	method, err = (&RemoteAuth{Type: AuthTypeBasic, Username: "u", Password: "p"}).method()
	if err != nil {
		t.Fatalf("Failed to build basic auth: %v", err)
	}
	if basic, ok := method.(*http.BasicAuth); !ok || basic.Username != "u" {
		t.Errorf("Expected basic auth for u, got %v", method)
	}

	if _, err := (&RemoteAuth{Type: "kerberos"}).method(); err == nil {
		t.Error("Expected error for unknown auth type")
	}
	if _, err := (&RemoteAuth{Type: AuthTypeSSH, KeyPath: "/nonexistent/key"}).method(); err == nil {
		t.Error("Expected error for missing ssh key")
	}
}
