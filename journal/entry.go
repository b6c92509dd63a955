package journal

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"

	"github.com/nickyhof/dbaccess/core"
)

// Entry is one journal commit.
type Entry struct {
	ID         string
	Sequence   int
	When       time.Time
	Author     core.Identity
	Message    string
	Statements int
}

func (entry Entry) String() string {
	return fmt.Sprintf("Entry{Id: %s, Sequence: %d, When: %s, Author: %s}", entry.ID, entry.Sequence, entry.When, entry.Author)
}

// IsZero reports whether entry is the empty Entry returned when the
// journal has no commits yet.
func (entry Entry) IsZero() bool {
	return entry.ID == ""
}

// Latest returns the entry at HEAD, or a zero Entry before the first commit.
func (j *Journal) Latest() (Entry, error) {
	if !j.IsInitialized() {
		return Entry{}, ErrNotInitialized
	}

	headRef, err := j.repo.Head()
	if err != nil || headRef == nil {
		return Entry{}, nil
	}

	commit, err := j.repo.CommitObject(headRef.Hash())
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get head commit: %w", err)
	}
	return j.entryFromCommit(commit)
}

// Entries returns all entries, newest first.
func (j *Journal) Entries() ([]Entry, error) {
	return j.entries(&git.LogOptions{})
}

// EntriesSince returns the entries committed at or after asof, newest first.
func (j *Journal) EntriesSince(asof time.Time) ([]Entry, error) {
	return j.entries(&git.LogOptions{Since: &asof})
}

func (j *Journal) entries(options *git.LogOptions) ([]Entry, error) {
	if !j.IsInitialized() {
		return nil, ErrNotInitialized
	}

	headRef, err := j.repo.Head()
	if err != nil {
		return nil, nil
	}
	options.From = headRef.Hash()

	cIter, err := j.repo.Log(options)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal log: %w", err)
	}
	defer cIter.Close()

	var entries []Entry
	err = cIter.ForEach(func(c *object.Commit) error {
		entry, err := j.entryFromCommit(c)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

// Read returns the statements committed by entry.
func (j *Journal) Read(entry Entry) ([]string, error) {
	if !j.IsInitialized() {
		return nil, ErrNotInitialized
	}

	commit, err := j.repo.CommitObject(plumbing.NewHash(entry.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", entry.ID, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	file, err := tree.File(path.Join(LogDir, entryFileName(entry.Sequence)))
	if err != nil {
		return nil, fmt.Errorf("entry file not found: %w", err)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read contents: %w", err)
	}

	return decodeStatements(content), nil
}

// entryFromCommit finds the file a commit added under LogDir. The newest
// file of the commit's tree is the one it wrote.
func (j *Journal) entryFromCommit(commit *object.Commit) (Entry, error) {
	entry := Entry{
		ID:      commit.Hash.String(),
		When:    commit.Committer.When,
		Author:  core.Identity{Name: commit.Author.Name, Email: commit.Author.Email},
		Message: commit.Message,
	}

	tree, err := commit.Tree()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get tree: %w", err)
	}
	logTree, err := tree.Tree(LogDir)
	if err != nil {
		return entry, nil
	}

	for _, treeEntry := range logTree.Entries {
		sequence, err := strconv.Atoi(strings.TrimSuffix(treeEntry.Name, ".sql"))
		if err == nil && sequence > entry.Sequence {
			entry.Sequence = sequence
		}
	}

	if entry.Sequence > 0 {
		file, err := logTree.File(entryFileName(entry.Sequence))
		if err == nil {
			if content, err := file.Contents(); err == nil {
				entry.Statements = len(decodeStatements(content))
			}
		}
	}
	return entry, nil
}
