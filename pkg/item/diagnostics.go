// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package item

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Diagnostic is one (optional item reference, message) pair (spec.md §3).
type Diagnostic struct {
	Item    Handle // InvalidHandle if the diagnostic has no associated item
	Message string
}

// Diagnostics is an ordered, append-only log (spec.md §3, §5: "Diagnostics
// are emitted in parse order").
type Diagnostics struct {
	entries []Diagnostic
}

// Add appends a diagnostic. item may be InvalidHandle.
func (d *Diagnostics) Add(item Handle, format string, args ...interface{}) {
	d.entries = append(d.entries, Diagnostic{Item: item, Message: fmt.Sprintf(format, args...)})
}

// Entries returns the diagnostics in parse order. The returned slice must
// not be mutated by the caller.
func (d *Diagnostics) Entries() []Diagnostic { return d.entries }

// Len returns the number of diagnostics recorded so far.
func (d *Diagnostics) Len() int { return len(d.entries) }

// Err folds every diagnostic into a single error, for callers (like a CLI's
// exit path) that want one value to report rather than walking Entries
// themselves. Returns nil if nothing was recorded.
func (d *Diagnostics) Err() error {
	if len(d.entries) == 0 {
		return nil
	}
	var merr *multierror.Error
	for _, e := range d.entries {
		merr = multierror.Append(merr, fmt.Errorf("%s", e.Message))
	}
	return merr.ErrorOrNil()
}
