// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"fmt"

	"github.com/ryanuber/columnize"

	"github.com/hashicorp/foreman/helper"
)

// StatusTable renders a snapshot of every task's state as an aligned
// table, tasks in declaration-compatible planner order. It is the headless
// counterpart of a UI's task table.
func (o *Orchestrator) StatusTable() string {
	rows := make([]string, 0, len(o.order)+1)
	rows = append(rows, "Name|Kind|State|Elapsed")

	for _, name := range o.order {
		rt := o.runtimes[name]
		elapsed := "-"
		if d := rt.Elapsed(); d > 0 {
			elapsed = helper.FormatDuration(d)
		}
		rows = append(rows, fmt.Sprintf("%s|%s|%s|%s",
			name, rt.Task().Kind, rt.State(), elapsed))
	}

	return columnize.SimpleFormat(rows)
}
