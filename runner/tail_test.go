// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"fmt"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/hashicorp/foreman/ci"
)

func TestTailBuffer(t *testing.T) {
	ci.Parallel(t)

	b := newTailBuffer(3)
	must.Len(t, 0, b.Lines())

	b.append("one")
	must.Eq(t, []string{"one"}, b.Lines())

	b.append("two")
	b.append("three")
	must.Eq(t, []string{"one", "two", "three"}, b.Lines())

	// Oldest line falls off once full.
	b.append("four")
	must.Eq(t, []string{"two", "three", "four"}, b.Lines())

	b.append("five")
	b.append("six")
	must.Eq(t, []string{"four", "five", "six"}, b.Lines())
}

func TestTailBuffer_Wraparound(t *testing.T) {
	ci.Parallel(t)

	b := newTailBuffer(10)
	for i := 0; i < 95; i++ {
		b.append(fmt.Sprintf("line-%d", i))
	}

	lines := b.Lines()
	must.Len(t, 10, lines)
	must.Eq(t, "line-85", lines[0])
	must.Eq(t, "line-94", lines[9])
}
