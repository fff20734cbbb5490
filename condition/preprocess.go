/*
 * Copyright 2025 The RuleGo Authors.
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

package condition

import (
	"strings"
	"unicode"
)

// sqlKeywords maps SQL spellings onto expr-lang ones. Only exact upper case words are rewritten.
var sqlKeywords = map[string]string{
	"AND":   "and",
	"OR":    "or",
	"NOT":   "not",
	"TRUE":  "true",
	"FALSE": "false",
	"NULL":  "nil",
}

// preprocess rewrites SQL keywords and the <> operator outside of string literals
func preprocess(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == '\'' || r == '"' || r == '`':
			// copy the literal verbatim, honouring backslash escapes
			j := i + 1
			for j < len(runes) && runes[j] != r {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(runes) {
				j = len(runes) - 1
			}
			b.WriteString(string(runes[i : j+1]))
			i = j + 1
		case r == '<' && i+1 < len(runes) && runes[i+1] == '>':
			b.WriteString("!=")
			i += 2
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			if repl, ok := sqlKeywords[word]; ok {
				word = repl
			}
			b.WriteString(word)
			i = j
		default:
			b.WriteRune(r)
			i++
		}
	}
	return b.String()
}

// matchLike implements SQL LIKE with % (any run) and _ (one character)
func matchLike(text, pattern string) bool {
	t, p := []rune(text), []rune(pattern)
	ti, pi := 0, 0
	star, mark := -1, 0
	for ti < len(t) {
		switch {
		case pi < len(p) && (p[pi] == '_' || p[pi] == t[ti]):
			ti++
			pi++
		case pi < len(p) && p[pi] == '%':
			star = pi
			mark = ti
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ti = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '%' {
		pi++
	}
	return pi == len(p)
}
