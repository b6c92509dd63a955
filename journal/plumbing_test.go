package journal

import (
	"testing"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
)

func TestFirstCommitFollowsHead(t *testing.T) {
	journal, err := NewMemory()
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}

	main := plumbing.NewBranchReferenceName("main")
	if err := journal.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, main)); err != nil {
		t.Fatalf("Failed to point HEAD at main: %v", err)
	}

	journal.Record("CREATE TABLE t (id INTEGER)")
	entry, err := journal.Commit(testIdentity, "first")
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	ref, err := journal.repo.Reference(main, false)
	if err != nil {
		t.Fatalf("Failed to read main: %v", err)
	}
	if ref.Hash().String() != entry.ID {
		t.Errorf("Expected main at %s, got %s", entry.ID, ref.Hash())
	}
	if _, err := journal.repo.Reference(plumbing.Master, false); err == nil {
		t.Error("Expected no master branch")
	}
}

func TestEntryTreeKeepsOtherFiles(t *testing.T) {
	journal, err := NewMemory()
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}
	for _, statement := range []string{"CREATE TABLE t (id INTEGER)", "INSERT INTO t VALUES (1)"} {
		journal.Record(statement)
		if _, err := journal.Commit(testIdentity, "Autocommit"); err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}
	}

	head, err := journal.headCommit()
	if err != nil || head == nil {
		t.Fatalf("Failed to get head commit: %v", err)
	}
	if len(head.ParentHashes) != 1 {
		t.Errorf("Expected 1 parent, got %d", len(head.ParentHashes))
	}

	root, err := head.Tree()
	if err != nil {
		t.Fatalf("Failed to get tree: %v", err)
	}
	logTree, err := root.Tree(LogDir)
	if err != nil {
		t.Fatalf("Failed to get log tree: %v", err)
	}
	if len(logTree.Entries) != 2 {
		t.Fatalf("Expected 2 log files, got %d", len(logTree.Entries))
	}
	if logTree.Entries[0].Name != entryFileName(1) || logTree.Entries[1].Name != entryFileName(2) {
		t.Errorf("Expected %s and %s, got %s and %s", entryFileName(1), entryFileName(2),
			logTree.Entries[0].Name, logTree.Entries[1].Name)
	}
}

func TestSortTree(t *testing.T) {
	entries := []object.TreeEntry{
		{Name: "log.txt", Mode: filemode.Regular},
		{Name: "log", Mode: filemode.Dir},
		{Name: "log-old", Mode: filemode.Regular},
	}
	sortTree(entries)

	// "log/" sorts after "log-old" and "log.txt".
	expected := []string{"log-old", "log.txt", "log"}
	for i, name := range expected {
		if entries[i].Name != name {
			t.Errorf("Expected %s at %d, got %s", name, i, entries[i].Name)
		}
	}
}
