package utils

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// GitState is the current repository commit, read from the working tree the
// worker was built from.
type GitState struct {
	CommitHash    string
	CommitMessage string
	Timestamp     time.Time
}

func CurrentGitState() (*GitState, error) {
	hash, err := gitOutput("rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("git commit hash: %w", err)
	}
	message, err := gitOutput("log", "-1", "--pretty=format:%s")
	if err != nil {
		return nil, fmt.Errorf("git commit message: %w", err)
	}
	stamp, err := gitOutput("log", "-1", "--pretty=format:%cI")
	if err != nil {
		return nil, fmt.Errorf("git commit timestamp: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return nil, fmt.Errorf("git commit timestamp format: %w", err)
	}
	return &GitState{CommitHash: hash, CommitMessage: message, Timestamp: ts}, nil
}

// GitDirty reports whether the working tree has uncommitted changes.
// Benchmark runs from a dirty tree are not attributable to a commit.
func GitDirty() (bool, error) {
	out, err := gitOutput("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func gitOutput(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
