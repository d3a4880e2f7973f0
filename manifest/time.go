// Copyright © 2024 Genome Research Limited
// Author: Sendu Bala <sb10@sanger.ac.uk>.
//
//  This file is part of wr.
//
//  wr is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Lesser General Public License as published by
//  the Free Software Foundation, either version 3 of the License, or
//  (at your option) any later version.
//
//  wr is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Lesser General Public License for more details.
//
//  You should have received a copy of the GNU Lesser General Public License
//  along with wr. If not, see <http://www.gnu.org/licenses/>.

package manifest

import (
	"fmt"
	"strings"
	"time"
)

// fileTimeLayout is the wire format emitted by the native scanner:
// "2021-08-17 09:30:00.123456789 +0100". We truncate the fractional seconds
// to milliseconds before parsing, since Go's reference layout can't express
// nanosecond-precision fractions alongside a numeric zone offset reliably
// across platforms, and the spec only requires millisecond precision anyway.
const fileTimeLayout = "2006-01-02 15:04:05.000 -0700"

// ParseFileTime parses the scanner's timestamp format, truncating fractional
// seconds to milliseconds. An empty string or "-" means unknown, reported via
// the second return value.
func ParseFileTime(s string) (t time.Time, unknown bool, err error) {
	if s == "" || s == "-" {
		return time.Time{}, true, nil
	}

	truncated, err := truncateToMillis(s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("manifest: bad timestamp %q: %w", s, err)
	}

	t, err = time.Parse(fileTimeLayout, truncated)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("manifest: bad timestamp %q: %w", s, err)
	}

	return t, false, nil
}

// truncateToMillis rewrites "YYYY-MM-DD HH:MM:SS.fffffffff +ZZZZ" down to
// millisecond precision so it matches fileTimeLayout.
func truncateToMillis(s string) (string, error) {
	dot := strings.IndexByte(s, '.')
	if dot == -1 {
		return "", fmt.Errorf("missing fractional seconds separator")
	}

	rest := s[dot+1:]
	space := strings.IndexByte(rest, ' ')
	if space == -1 {
		return "", fmt.Errorf("missing zone offset")
	}

	frac := rest[:space]
	if len(frac) < 3 {
		return "", fmt.Errorf("fractional seconds too short: %q", frac)
	}

	return s[:dot+1] + frac[:3] + rest[space:], nil
}

// FormatFileTime renders t in the scanner's wire format, at millisecond
// precision padded out to the nine-digit field width the format declares.
func FormatFileTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000") + "000000 " + t.Format("-0700")
}
