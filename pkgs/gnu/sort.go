// Package gnu implements GNU/Debian style version ordering for versions
// that are not semantic versions, such as "0.9.9.8", "7188" or "1.0~rc1".
package gnu

/* Compare file names containing version numbers.

   Copyright (C) 1995 Ian Jackson <iwj10@cus.cam.ac.uk>
   Copyright (C) 2001 Anthony Towns <aj@azure.humbug.org.au>
   Copyright (C) 2008-2025 Free Software Foundation, Inc.

   This file is free software: you can redistribute it and/or modify
   it under the terms of the GNU Lesser General Public License as
   published by the Free Software Foundation, either version 3 of the
   License, or (at your option) any later version.

   This file is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Lesser General Public License for more details.

   You should have received a copy of the GNU Lesser General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.  */

import (
	"slices"
	"strings"
)

// Compare compares two version strings and returns
// a negative number if a < b, zero if a == b and a positive number if a > b.
//
// Versions are split into alternating non-digit and digit runs. Non-digit
// runs compare character by character with letters before other symbols and
// '~' before everything, even the end of the string. Digit runs compare by
// numeric value.
func Compare(a, b string) int {
	for a != "" || b != "" {
		var sa, sb string
		sa, a = cut(a, false)
		sb, b = cut(b, false)
		if c := compareSymbols(sa, sb); c != 0 {
			return c
		}
		sa, a = cut(a, true)
		sb, b = cut(b, true)
		if c := compareNumbers(sa, sb); c != 0 {
			return c
		}
	}
	return 0
}

// Less reports whether a sorts before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Sort sorts versions in ascending order.
func Sort(versions []string) {
	slices.SortStableFunc(versions, Compare)
}

// cut splits off the leading run of digits (digits == true) or non-digits.
func cut(s string, digits bool) (run, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) == digits {
		i++
	}
	return s[:i], s[i:]
}

func compareSymbols(a, b string) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		var ca, cb byte
		if i < len(a) {
			ca = a[i]
		}
		if i < len(b) {
			cb = b[i]
		}
		if oa, ob := order(ca), order(cb); oa != ob {
			return oa - ob
		}
	}
	return 0
}

func compareNumbers(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

// order returns the sorting priority of a character
// digits: 0, letters: ASCII value, '~': -1, null: 0, others: ASCII value + 256
func order(c byte) int {
	switch {
	case isDigit(c), c == 0:
		return 0
	case isAlpha(c):
		return int(c)
	case c == '~':
		return -1
	}
	return int(c) + 256
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
