package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing/transport"
	"github.com/go-git/go-git/v6/plumbing/transport/http"
	"github.com/go-git/go-git/v6/plumbing/transport/ssh"
)

// DefaultRemote is used when no remote name is given.
const DefaultRemote = "origin"

// AuthType defines the type of authentication
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeToken AuthType = "token"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeBasic AuthType = "basic"
)

// RemoteAuth holds the credentials for pushing to and fetching from a
// remote. A nil RemoteAuth means no authentication.
type RemoteAuth struct {
	Type       AuthType
	Token      string
	KeyPath    string // defaults to ~/.ssh/id_rsa
	Passphrase string
	Username   string
	Password   string
}

// Remote is a named remote of the journal repository.
type Remote struct {
	Name string
	URLs []string
}

func (auth *RemoteAuth) method() (transport.AuthMethod, error) {
	if auth == nil {
		return nil, nil
	}

	switch auth.Type {
	case AuthTypeNone:
		return nil, nil
	case AuthTypeBasic:
		return &http.BasicAuth{Username: auth.Username, Password: auth.Password}, nil
	case AuthTypeToken:
		// hosts ignore the user name of a token
		return &http.BasicAuth{Username: "git", Password: auth.Token}, nil
	case AuthTypeSSH:
		if auth.KeyPath != "" {
			return ssh.NewPublicKeysFromFile("git", auth.KeyPath, auth.Passphrase)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		return ssh.NewPublicKeysFromFile("git", filepath.Join(home, ".ssh", "id_rsa"), auth.Passphrase)
	}
	return nil, fmt.Errorf("unknown auth type: %s", auth.Type)
}

// AddRemote adds a named remote to the journal repository.
func (j *Journal) AddRemote(name, url string) error {
	if !j.IsInitialized() {
		return ErrNotInitialized
	}

	if _, err := j.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}}); err != nil {
		return fmt.Errorf("cannot add remote '%s': %w", name, err)
	}
	return nil
}

// Remotes returns the configured remotes.
func (j *Journal) Remotes() ([]Remote, error) {
	if !j.IsInitialized() {
		return nil, ErrNotInitialized
	}

	remotes, err := j.repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}

	var result []Remote
	for _, remote := range remotes {
		result = append(result, Remote{Name: remote.Config().Name, URLs: remote.Config().URLs})
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Name < result[b].Name })
	return result, nil
}

// RemoveRemote deletes a remote and its configuration.
func (j *Journal) RemoveRemote(name string) error {
	if !j.IsInitialized() {
		return ErrNotInitialized
	}

	if err := j.repo.DeleteRemote(name); err != nil {
		return fmt.Errorf("cannot remove remote '%s': %w", name, err)
	}
	return nil
}

// prepareRemote defaults the remote name and resolves auth.
func (j *Journal) prepareRemote(name string, auth *RemoteAuth) (string, transport.AuthMethod, error) {
	if !j.IsInitialized() {
		return "", nil, ErrNotInitialized
	}
	if name == "" {
		name = DefaultRemote
	}
	method, err := auth.method()
	if err != nil {
		return "", nil, fmt.Errorf("invalid credentials for '%s': %w", name, err)
	}
	return name, method, nil
}

// remoteErr treats an up to date remote as success.
func remoteErr(op, name string, err error) error {
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return fmt.Errorf("%s '%s' failed: %w", op, name, err)
}

// Push publishes the committed entries of the current branch to a remote
// branch of the same name. Pending statements are not pushed.
func (j *Journal) Push(ctx context.Context, remoteName string, auth *RemoteAuth) error {
	name, method, err := j.prepareRemote(remoteName, auth)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	head, err := j.repo.Head()
	if err != nil {
		return fmt.Errorf("nothing to push: %w", err)
	}
	branch := head.Name()
	return remoteErr("push to", name, j.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: name,
		RefSpecs:   []config.RefSpec{config.RefSpec(branch + ":" + branch)},
		Auth:       method,
	}))
}

// Fetch downloads the entries of a remote into its remote-tracking
// references. The journal itself does not change.
func (j *Journal) Fetch(ctx context.Context, remoteName string, auth *RemoteAuth) error {
	name, method, err := j.prepareRemote(remoteName, auth)
	if err != nil {
		return err
	}
	return remoteErr("fetch from", name, j.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: name,
		Auth:       method,
	}))
}

// Pull fast-forwards the journal to the entries of a remote. It fails
// while statements are pending.
func (j *Journal) Pull(ctx context.Context, remoteName string, auth *RemoteAuth) error {
	name, method, err := j.prepareRemote(remoteName, auth)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if n := len(j.pending); n > 0 {
		return fmt.Errorf("cannot pull with %d pending statements", n)
	}

	wt, err := j.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: name, Auth: method})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err := remoteErr("pull from", name, err); err != nil {
		return err
	}
	return j.loadSequence()
}
