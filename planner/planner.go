// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package planner orders tasks so that every task appears after all of its
// dependencies, and rejects dependency cycles.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/hashicorp/foreman/config"
)

// CycleError indicates the dependency graph is not a DAG. Remaining lists
// the tasks that could not be ordered, in declaration order.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving tasks: %s", strings.Join(e.Remaining, ", "))
}

// Order computes a topological ordering of the configured tasks using
// Kahn's algorithm. Ties break on declaration order, so the result is
// deterministic for identical input.
//
// The ordering is used to validate acyclicity and to seed supervisor launch
// order; at runtime tasks are released by their dependencies' ready
// latches, not by this serialization.
func Order(f *config.File) ([]string, error) {
	index := make(map[string]int, len(f.Tasks))
	indegree := make(map[string]int, len(f.Tasks))
	children := make(map[string][]string, len(f.Tasks))

	for i, t := range f.Tasks {
		index[t.Name] = i
		indegree[t.Name] = len(t.DependsOn)
	}
	for _, t := range f.Tasks {
		for _, dep := range t.DependsOn {
			children[dep] = append(children[dep], t.Name)
		}
	}

	var queue []string
	for _, t := range f.Tasks {
		if indegree[t.Name] == 0 {
			queue = append(queue, t.Name)
		}
	}

	order := make([]string, 0, len(f.Tasks))
	for len(queue) > 0 {
		// Pop the earliest-declared zero-indegree task.
		sort.SliceStable(queue, func(a, b int) bool {
			return index[queue[a]] < index[queue[b]]
		})
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, child := range children[name] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) != len(f.Tasks) {
		ordered := set.From(order)
		var remaining []string
		for _, t := range f.Tasks {
			if !ordered.Contains(t.Name) {
				remaining = append(remaining, t.Name)
			}
		}
		return nil, &CycleError{Remaining: remaining}
	}
	return order, nil
}
