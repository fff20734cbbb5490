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

package window

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cast"

	"github.com/rulego/fpcql/types"
)

type keyGroup struct {
	canonical string
	key       []interface{}
	samples   []*types.Sample
}

// keySeparator cannot appear in a formatted number and is unlikely in attribute text
const keySeparator = "\x1f"

// encodeKey renders a key tuple canonically: numbers compare by value regardless of
// their Go type, everything else by type and text.
func encodeKey(tuple []interface{}) string {
	var b strings.Builder
	for i, v := range tuple {
		if i > 0 {
			b.WriteString(keySeparator)
		}
		b.WriteString(encodeValue(v))
	}
	return b.String()
}

func encodeValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "n:"
	case bool:
		return "b:" + strconv.FormatBool(x)
	case string:
		return "s:" + x
	case []byte:
		return "s:" + string(x)
	case time.Time:
		return "t:" + strconv.FormatInt(x.UnixNano(), 10)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f, err := cast.ToFloat64E(x)
		if err == nil {
			return "f:" + strconv.FormatFloat(f, 'g', -1, 64)
		}
	}
	if s, err := cast.ToStringE(v); err == nil {
		return fmt.Sprintf("x:%T:%s", v, s)
	}
	return fmt.Sprintf("x:%T:%v", v, v)
}

func hashKey(canonical string) uint64 {
	return xxhash.Sum64String(canonical)
}
