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

package sink

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/fpcql/condition"
	"github.com/rulego/fpcql/device/sim"
	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/operator"
	"github.com/rulego/fpcql/sampling"
	"github.com/rulego/fpcql/stream"
	"github.com/rulego/fpcql/types"
)

const waitFor = 2 * time.Second

var insertRows = regexp.QuoteMeta("INSERT INTO fpc_rows (query, ts, pass, values) VALUES ($1,$2,$3,$4)")

// newQuery builds a query sampling a=1, b="x" every 5ms
func newQuery(t *testing.T, h stream.Handler, terminate types.WindowSize) *stream.Query {
	t.Helper()
	dev := sim.New(sim.WithLogger(logger.NewDiscardLogger()))
	dev.Set("a", 1)
	dev.Set("b", "x")
	a, err := condition.Compile("a")
	require.NoError(t, err)
	b, err := condition.Compile("b")
	require.NoError(t, err)
	chain, err := sampling.NewRateChain([]sampling.Rule{{Rate: 5 * time.Millisecond}}, "", sampling.Never())
	require.NoError(t, err)
	q, err := stream.NewQuery(stream.Definition{
		Name:           "sink",
		Select:         &operator.Select{Fields: []condition.Expression{a, b}, Names: []string{"a", "b"}},
		Rate:           &chain,
		TerminateAfter: terminate,
	}, h, stream.Options{Device: dev, Logger: logger.NewDiscardLogger()})
	require.NoError(t, err)
	t.Cleanup(q.Stop)
	return q
}

func TestSQLSinkWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSQLSink(db, "fpc_rows", logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, "sql:fpc_rows", s.Name())

	mock.ExpectExec(insertRows).
		WithArgs("q", sqlmock.AnyArg(), int64(2), []byte(`{"a":1,"b":"x","col2":null}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.Write(context.Background(), "q", 2, []string{"a", "b"}, types.Row{1, "x", nil})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSinkWriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSQLSink(db, "fpc_rows", logger.NewDiscardLogger())
	require.NoError(t, err)
	mock.ExpectExec(insertRows).WillReturnError(errors.New("connection reset"))

	err = s.Write(context.Background(), "q", 1, nil, types.Row{1})
	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLSinkTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, ok := range []string{"rows", "public.fpc_rows", "_t1"} {
		_, err := NewSQLSink(db, ok, nil)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "rows; DROP TABLE x", "1rows", "a.b.c"} {
		_, err := NewSQLSink(db, bad, nil)
		assert.ErrorIs(t, err, types.ErrInvalidConfig, bad)
	}
}

func TestSQLSinkAsQueryHandler(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSQLSink(db, "fpc_rows", logger.NewDiscardLogger())
	require.NoError(t, err)
	for pass := int64(1); pass <= 2; pass++ {
		mock.ExpectExec(insertRows).
			WithArgs("sink", sqlmock.AnyArg(), pass, []byte(`{"a":1,"b":"x"}`)).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	ch := NewChannelHandler(8)
	q := newQuery(t, Multi{s, ch}, types.Count(2))
	require.NoError(t, q.Start())

	select {
	case <-ch.Done():
	case <-time.After(waitFor):
		t.Fatal("query did not complete")
	}
	assert.Equal(t, int64(2), s.Written())
	assert.Zero(t, s.Failures())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChannelHandler(t *testing.T) {
	ch := NewChannelHandler(16)
	q := newQuery(t, ch, types.WindowSize{})
	require.NoError(t, q.Start())

	select {
	case res := <-ch.Rows():
		assert.Equal(t, "sink", res.Query)
		assert.Equal(t, types.Row{1, "x"}, res.Row)
		assert.Equal(t, map[string]interface{}{"a": 1, "b": "x"}, res.Map())
		assert.False(t, res.At.IsZero())
	case <-time.After(waitFor):
		t.Fatal("no row delivered")
	}

	q.Stop()
	select {
	case <-ch.Done():
	case <-time.After(waitFor):
		t.Fatal("done not closed on stop")
	}
	assert.Empty(t, ch.Errors())
}

func TestChannelHandlerDropsWhenFull(t *testing.T) {
	ch := NewChannelHandler(1)
	q := newQuery(t, ch, types.WindowSize{})

	ch.OnRow(q, types.Row{1, "x"})
	ch.OnRow(q, types.Row{2, "y"})
	assert.Equal(t, int64(1), ch.Dropped())
	assert.Len(t, ch.Rows(), 1)

	ch.OnError(q, errors.New("boom"))
	ch.OnComplete(q)
	assert.EqualError(t, <-ch.Errors(), "boom")
	<-ch.Done()
}

func TestFuncHandler(t *testing.T) {
	var rows, errs, completes int
	h := FuncHandler{
		Row:      func(*stream.Query, types.Row) { rows++ },
		Error:    func(*stream.Query, error) { errs++ },
		Complete: func(*stream.Query) { completes++ },
	}
	Multi{h, FuncHandler{}}.OnRow(nil, types.Row{1})
	Multi{h, FuncHandler{}}.OnError(nil, errors.New("x"))
	Multi{h, FuncHandler{}}.OnComplete(nil)
	assert.Equal(t, 1, rows)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, completes)
}
