package journal

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"

	"github.com/nickyhof/dbaccess/core"
)

var (
	ErrNotInitialized = errors.New("journal not initialized")
	// ErrNothingPending is returned by Commit when no statement was recorded.
	ErrNothingPending = errors.New("no pending statements")
)

// LogDir is the directory of the repository that holds the entries.
const LogDir = "log"

// statementTerminator ends every statement in an entry file.
const statementTerminator = "\n;\n"

// Journal records executed statements and commits them to a git
// repository, one file per commit.
type Journal struct {
	repo         *git.Repository
	mu           sync.Mutex
	pending      []string
	sequence     int
	isMemoryMode bool
}

// NewMemory creates a journal whose repository lives in memory.
func NewMemory() (*Journal, error) {
	wt := memfs.New()
	storer := memory.NewStorage()

	repo, err := git.Init(storer, git.WithWorkTree(wt))
	if err != nil {
		return nil, err
	}

	return &Journal{repo: repo, isMemoryMode: true}, nil
}

// NewFile opens the journal repository in baseDir, creating it when
// baseDir holds no repository yet.
func NewFile(baseDir string) (*Journal, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	wt := osfs.New(baseDir)
	fs, err := wt.Chroot(".git")
	if err != nil {
		return nil, err
	}

	storer := filesystem.NewStorageWithOptions(
		fs,
		cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	var repo *git.Repository
	if _, statErr := os.Stat(fs.Root()); statErr != nil {
		repo, err = git.Init(storer, git.WithWorkTree(wt))
	} else {
		repo, err = git.Open(storer, wt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal in %s: %w", baseDir, err)
	}

	journal := &Journal{repo: repo}
	if err := journal.loadSequence(); err != nil {
		return nil, err
	}
	return journal, nil
}

func (j *Journal) IsInitialized() bool {
	return j != nil && j.repo != nil
}

// loadSequence continues numbering after the entries already committed.
func (j *Journal) loadSequence() error {
	entries, err := j.Entries()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Sequence > j.sequence {
			j.sequence = entry.Sequence
		}
	}
	return nil
}

// Record queues a statement for the next commit.
func (j *Journal) Record(statement string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, strings.TrimSpace(statement))
}

// Pending returns a copy of the queued statements.
func (j *Journal) Pending() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.pending...)
}

// Discard drops the queued statements.
func (j *Journal) Discard() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = nil
}

// Commit writes the queued statements as the next entry and commits it
// on HEAD. The queue is cleared on success only.
func (j *Journal) Commit(identity core.Identity, message string) (Entry, error) {
	if !j.IsInitialized() {
		return Entry{}, ErrNotInitialized
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.pending) == 0 {
		return Entry{}, ErrNothingPending
	}

	parent, err := j.headCommit()
	if err != nil {
		return Entry{}, err
	}

	sequence := j.sequence + 1
	blob, err := j.storeBlob([]byte(encodeStatements(j.pending)))
	if err != nil {
		return Entry{}, err
	}

	tree, err := j.entryTree(parent, entryFileName(sequence), blob)
	if err != nil {
		return Entry{}, err
	}

	entry, err := j.commitTree(tree, parent, identity, message)
	if err != nil {
		return Entry{}, err
	}

	if err := j.syncWorktree(); err != nil {
		return Entry{}, fmt.Errorf("failed to sync worktree: %w", err)
	}

	entry.Sequence = sequence
	entry.Statements = len(j.pending)
	j.sequence = sequence
	j.pending = nil
	return entry, nil
}

func entryFileName(sequence int) string {
	return fmt.Sprintf("%08d.sql", sequence)
}

func encodeStatements(statements []string) string {
	var builder strings.Builder
	for _, statement := range statements {
		builder.WriteString(statement)
		builder.WriteString(statementTerminator)
	}
	return builder.String()
}

func decodeStatements(content string) []string {
	var statements []string
	for _, part := range strings.Split(content, statementTerminator) {
		if part = strings.TrimSpace(part); part != "" {
			statements = append(statements, part)
		}
	}
	return statements
}
