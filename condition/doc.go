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

/*
Package condition evaluates bound expressions for fpcql using the expr-lang library.

The engine only needs one capability from it: evaluate an expression against a record
and an optional window, get back a typed value. Predicates (WHERE, HAVING, EXECUTE IF,
IF-EVERY rules) use three-valued logic:

	Test(sample, window) -> True | False | Unknown

NULL operands, missing attributes and runtime errors all yield Unknown, and only True
admits a sample or a row.

# Window Functions

Expressions evaluated with a window may aggregate over it:

	COUNT()  SUM("f")  AVG("f")  MIN("f")  MAX("f")  FIRST("f")  LAST("f")

# SQL Compatibility

AND, OR, NOT, TRUE, FALSE, NULL and <> are rewritten to expr-lang syntax before compiling,
and like_match(text, pattern) implements LIKE.

	cond, _ := condition.NewExprCondition("power > 80 AND NOT idle")
	cond.Test(sample, nil) // condition.True
*/
package condition
