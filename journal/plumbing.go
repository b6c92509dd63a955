package journal

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"

	"github.com/nickyhof/dbaccess/core"
)

// Entries are written with git plumbing: a blob for the statements, a new
// log tree and root tree, and a commit on the branch HEAD points to. The
// worktree is not consulted.

type encoder interface {
	Encode(plumbing.EncodedObject) error
}

func (j *Journal) store(o encoder) (plumbing.Hash, error) {
	obj := j.repo.Storer.NewEncodedObject()
	if err := o.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return j.repo.Storer.SetEncodedObject(obj)
}

func (j *Journal) storeBlob(data []byte) (plumbing.Hash, error) {
	obj := j.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create blob writer: %w", err)
	}
	_, err = writer.Write(data)
	if closeErr := writer.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob: %w", err)
	}

	hash, err := j.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store blob: %w", err)
	}
	return hash, nil
}

// headCommit returns the commit at HEAD, nil before the first commit.
func (j *Journal) headCommit() (*object.Commit, error) {
	head, err := j.repo.Head()
	if err == plumbing.ErrReferenceNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	commit, err := j.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get head commit: %w", err)
	}
	return commit, nil
}

// branchRef is the branch HEAD points to, even before it has a commit.
func (j *Journal) branchRef() plumbing.ReferenceName {
	head, err := j.repo.Storer.Reference(plumbing.HEAD)
	if err == nil && head.Type() == plumbing.SymbolicReference {
		return head.Target()
	}
	return plumbing.Master
}

// sortTree orders entries the way git does: directories compare as if
// their name ended in a slash.
func sortTree(entries []object.TreeEntry) {
	key := func(entry object.TreeEntry) string {
		if entry.Mode == filemode.Dir {
			return entry.Name + "/"
		}
		return entry.Name
	}
	sort.Slice(entries, func(a, b int) bool {
		return key(entries[a]) < key(entries[b])
	})
}

// withEntry returns entries with name set to entry, replacing any entry
// of the same name.
func withEntry(entries []object.TreeEntry, entry object.TreeEntry) []object.TreeEntry {
	result := make([]object.TreeEntry, 0, len(entries)+1)
	for _, existing := range entries {
		if existing.Name != entry.Name {
			result = append(result, existing)
		}
	}
	result = append(result, entry)
	sortTree(result)
	return result
}

// entryTree builds the root tree of parent with fileName added to LogDir.
func (j *Journal) entryTree(parent *object.Commit, fileName string, blob plumbing.Hash) (plumbing.Hash, error) {
	var rootEntries, logEntries []object.TreeEntry
	if parent != nil {
		root, err := parent.Tree()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to get tree: %w", err)
		}
		rootEntries = root.Entries
		if logTree, err := root.Tree(LogDir); err == nil {
			logEntries = logTree.Entries
		}
	}

	logHash, err := j.store(&object.Tree{
		Entries: withEntry(logEntries, object.TreeEntry{Name: fileName, Mode: filemode.Regular, Hash: blob}),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store log tree: %w", err)
	}

	rootHash, err := j.store(&object.Tree{
		Entries: withEntry(rootEntries, object.TreeEntry{Name: LogDir, Mode: filemode.Dir, Hash: logHash}),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store root tree: %w", err)
	}
	return rootHash, nil
}

// commitTree commits tree on top of parent and moves the branch to it.
func (j *Journal) commitTree(tree plumbing.Hash, parent *object.Commit, identity core.Identity, message string) (Entry, error) {
	signature := object.Signature{Name: identity.Name, Email: identity.Email, When: time.Now()}
	commit := &object.Commit{
		Author:    signature,
		Committer: signature,
		Message:   message,
		TreeHash:  tree,
	}
	if parent != nil {
		commit.ParentHashes = []plumbing.Hash{parent.Hash}
	}

	hash, err := j.store(commit)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to store commit: %w", err)
	}
	if err := j.repo.Storer.SetReference(plumbing.NewHashReference(j.branchRef(), hash)); err != nil {
		return Entry{}, fmt.Errorf("failed to update branch: %w", err)
	}

	return Entry{
		ID:      hash.String(),
		When:    signature.When,
		Author:  identity,
		Message: message,
	}, nil
}

// syncWorktree checks HEAD out into the worktree of a file journal.
func (j *Journal) syncWorktree() error {
	if j.isMemoryMode {
		return nil
	}

	wt, err := j.repo.Worktree()
	if err != nil {
		return err
	}

	head, err := j.repo.Head()
	if err != nil {
		return err
	}

	return wt.Reset(&git.ResetOptions{
		Mode:   git.HardReset,
		Commit: head.Hash(),
	})
}
