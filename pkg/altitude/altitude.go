/*
 * Copyright 2025 Cyberhaven, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package altitude implements minifilter altitude values and the
// system-wide claim registry that keeps them unique. An altitude is a
// decimal string; lower values sit closer to the file system, so I/O
// requests visit filters bottom-up and completions top-down.
package altitude

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidAltitude      = errors.New("altitude is not a decimal string")
	ErrAltitudeOutsideRange = errors.New("altitude is outside the vendor's reserved range")
)

// Altitude is a parsed altitude value. The zero value is not valid; use
// Parse.
type Altitude struct {
	raw      string
	whole    int64
	fraction string
}

// Parse validates a decimal altitude string such as "265000" or
// "370030.5".
func Parse(s string) (Altitude, error) {
	whole, fraction, _ := strings.Cut(s, ".")

	if whole == "" {
		return Altitude{}, fmt.Errorf("%w: %q", ErrInvalidAltitude, s)
	}

	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || n < 0 {
		return Altitude{}, fmt.Errorf("%w: %q", ErrInvalidAltitude, s)
	}

	for i := 0; i < len(fraction); i++ {
		if fraction[i] < '0' || fraction[i] > '9' {
			return Altitude{}, fmt.Errorf("%w: %q", ErrInvalidAltitude, s)
		}
	}

	return Altitude{raw: s, whole: n, fraction: strings.TrimRight(fraction, "0")}, nil
}

// String returns the altitude as originally written.
func (a Altitude) String() string { return a.raw }

// Canonical returns the normalized spelling: leading zeros and trailing
// fraction zeros dropped, so "265000.50" and "265000.5" render the same.
// Equal altitudes always share one canonical form.
func (a Altitude) Canonical() string {
	if a.fraction == "" {
		return strconv.FormatInt(a.whole, 10)
	}

	return strconv.FormatInt(a.whole, 10) + "." + a.fraction
}

// Compare orders altitudes numerically: negative when a is below b in the
// filter stack (closer to the file system), zero when equal.
func (a Altitude) Compare(b Altitude) int {
	switch {
	case a.whole < b.whole:
		return -1
	case a.whole > b.whole:
		return 1
	}

	// Equal whole parts: compare normalized fractions digit by digit, a
	// missing digit reading as zero.
	af, bf := a.fraction, b.fraction
	for len(af) < len(bf) {
		af += "0"
	}

	for len(bf) < len(af) {
		bf += "0"
	}

	return strings.Compare(af, bf)
}

// Range is a vendor's reserved altitude band.
type Range struct {
	Min int64
	Max int64
}

// ContentScreenerRange is the "FSFilter Content Screener" band the s2e
// filter registers in.
var ContentScreenerRange = Range{Min: 260000, Max: 269999}

// Contains reports whether the altitude's whole part falls in the band.
func (r Range) Contains(a Altitude) bool {
	return a.whole >= r.Min && a.whole <= r.Max
}
