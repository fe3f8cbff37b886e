// Package gitstatus gives the CLI's "status" command and the HTTP
// collaborator's /status endpoint a git-aware notion of workspace
// state: current branch, HEAD commit, and whether the worktree is
// dirty. It is a thin reading of the repository go-git already finds
// on disk, not a core operation.
package gitstatus

import (
	"github.com/go-git/go-git/v5"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/rerr"
)

// Status summarises one repository's working tree.
type Status struct {
	Branch string `json:"branch"`
	Commit string `json:"commit"`
	Dirty  bool   `json:"dirty"`
}

// Read opens the git repository containing dir (walking up to find
// ".git" the way go-git's PlainOpenWithOptions does) and reports its
// current branch, HEAD commit, and dirty state. A directory that is
// not inside a git repository is not an error here: Read reports a
// zero Status so the CLI/HTTP callers can render "not a git workspace"
// rather than fail outright.
func Read(dir string) (*Status, errors.E) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return &Status{}, nil
		}
		return nil, rerr.ExternalProcess(err, "opening git repository at %s failed", dir)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, rerr.ExternalProcess(err, "reading HEAD failed")
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, rerr.ExternalProcess(err, "reading worktree failed")
	}
	wstatus, err := worktree.Status()
	if err != nil {
		return nil, rerr.ExternalProcess(err, "reading worktree status failed")
	}

	return &Status{
		Branch: head.Name().Short(),
		Commit: head.Hash().String(),
		Dirty:  !wstatus.IsClean(),
	}, nil
}
