// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package config holds the task descriptors the orchestrator consumes. The
// on-disk format is TOML with a [defaults] block and repeated [[task]]
// blocks; Load decodes and resolves it into immutable Task values.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-set/v3"
)

const (
	// DefaultReadyTimeout bounds the readiness probe loop when a task does
	// not override it.
	DefaultReadyTimeout = 30 * time.Second

	// DefaultMaxLines is the number of output lines retained per task when
	// neither the task nor the defaults block sets max_lines.
	DefaultMaxLines = 2000
)

// Kind determines how a task's lifecycle is interpreted.
type Kind string

const (
	// KindOneshot tasks are expected to terminate; exit 0 is success.
	KindOneshot Kind = "oneshot"

	// KindService tasks are long-lived and become ready when their
	// readiness command succeeds.
	KindService Kind = "service"

	// KindDaemon tasks are long-lived and are considered ready as soon as
	// they are spawned.
	KindDaemon Kind = "daemon"
)

// Longlived returns true for kinds that are not expected to exit on their
// own.
func (k Kind) Longlived() bool {
	return k == KindService || k == KindDaemon
}

// Validation errors. All but ErrEmptyName are wrapped with the offending
// task name, so test with errors.Is.
var (
	ErrEmptyName         = errors.New("task name must not be empty")
	ErrDuplicateName     = errors.New("duplicate task name")
	ErrUnknownKind       = errors.New("unknown task kind")
	ErrUnknownDependency = errors.New("dependency does not name a task")
	ErrSelfDependency    = errors.New("task depends on itself")
)

// Task describes one unit of work. Immutable after Load.
type Task struct {
	Name         string
	Kind         Kind
	Cmd          string
	DependsOn    []string
	ReadyCmd     string
	Workdir      string
	ReadyTimeout time.Duration
	MaxLines     int
}

// File is a fully resolved configuration: tasks in declaration order plus
// the defaults-derived retained-line hint.
type File struct {
	Tasks    []*Task
	MaxLines int
}

// Lookup returns the task with the given name, or nil.
func (f *File) Lookup(name string) *Task {
	for _, t := range f.Tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Names returns task names in declaration order.
func (f *File) Names() []string {
	names := make([]string, len(f.Tasks))
	for i, t := range f.Tasks {
		names[i] = t.Name
	}
	return names
}

// Raw decode targets. Pointer fields distinguish "absent" from zero so the
// defaults block can fill them.
type rawDefaults struct {
	CmdPrefix    string  `toml:"cmd_prefix"`
	Workdir      string  `toml:"workdir"`
	ReadyTimeout float64 `toml:"ready_timeout"`
	MaxLines     int     `toml:"max_lines"`
}

type rawTask struct {
	Name         string   `toml:"name"`
	Kind         string   `toml:"kind"`
	Cmd          string   `toml:"cmd"`
	DependsOn    []string `toml:"depends_on"`
	ReadyCmd     string   `toml:"ready_cmd"`
	Workdir      string   `toml:"workdir"`
	ReadyTimeout *float64 `toml:"ready_timeout"`
	MaxLines     *int     `toml:"max_lines"`
}

type rawFile struct {
	Defaults rawDefaults `toml:"defaults"`
	Tasks    []rawTask   `toml:"task"`
}

// Load reads and resolves the TOML configuration at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a TOML configuration, applies defaults, resolves working
// directories, and validates the result.
func Parse(r io.Reader) (*File, error) {
	var raw rawFile
	if _, err := toml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	defWorkdir := raw.Defaults.Workdir
	if defWorkdir == "" {
		defWorkdir = "."
	}
	defWorkdir, err := absWorkdir(defWorkdir)
	if err != nil {
		return nil, err
	}

	defTimeout := DefaultReadyTimeout
	if raw.Defaults.ReadyTimeout > 0 {
		defTimeout = secondsToDuration(raw.Defaults.ReadyTimeout)
	}
	defMaxLines := raw.Defaults.MaxLines
	if defMaxLines <= 0 {
		defMaxLines = DefaultMaxLines
	}

	file := &File{MaxLines: defMaxLines}
	for _, rt := range raw.Tasks {
		cmd := rt.Cmd
		if raw.Defaults.CmdPrefix != "" {
			cmd = raw.Defaults.CmdPrefix + " && " + cmd
		}

		kind := Kind(rt.Kind)
		if rt.Kind == "" {
			kind = KindOneshot
		}

		workdir := defWorkdir
		if rt.Workdir != "" {
			if workdir, err = absWorkdir(rt.Workdir); err != nil {
				return nil, err
			}
		}

		timeout := defTimeout
		if rt.ReadyTimeout != nil {
			timeout = secondsToDuration(*rt.ReadyTimeout)
		}
		maxLines := defMaxLines
		if rt.MaxLines != nil {
			maxLines = *rt.MaxLines
		}

		file.Tasks = append(file.Tasks, &Task{
			Name:         rt.Name,
			Kind:         kind,
			Cmd:          cmd,
			DependsOn:    rt.DependsOn,
			ReadyCmd:     rt.ReadyCmd,
			Workdir:      workdir,
			ReadyTimeout: timeout,
			MaxLines:     maxLines,
		})
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

// Validate checks the semantic constraints the orchestrator relies on:
// non-empty unique names, recognized kinds, and dependencies that resolve
// within the set. Acyclicity is the planner's concern.
func (f *File) Validate() error {
	var mErr *multierror.Error

	seen := set.New[string](len(f.Tasks))
	for _, t := range f.Tasks {
		if t.Name == "" {
			mErr = multierror.Append(mErr, ErrEmptyName)
			continue
		}
		if !seen.Insert(t.Name) {
			mErr = multierror.Append(mErr, fmt.Errorf("task %q: %w", t.Name, ErrDuplicateName))
		}
		switch t.Kind {
		case KindOneshot, KindService, KindDaemon:
		default:
			mErr = multierror.Append(mErr, fmt.Errorf("task %q: %w: %q", t.Name, ErrUnknownKind, t.Kind))
		}
	}

	for _, t := range f.Tasks {
		for _, dep := range t.DependsOn {
			if dep == t.Name {
				mErr = multierror.Append(mErr, fmt.Errorf("task %q: %w", t.Name, ErrSelfDependency))
				continue
			}
			if !seen.Contains(dep) {
				mErr = multierror.Append(mErr, fmt.Errorf("task %q: %w: %q", t.Name, ErrUnknownDependency, dep))
			}
		}
	}

	return mErr.ErrorOrNil()
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// absWorkdir expands a leading ~ and resolves the path to absolute.
func absWorkdir(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand workdir %q: %w", dir, err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workdir %q: %w", dir, err)
	}
	return abs, nil
}
