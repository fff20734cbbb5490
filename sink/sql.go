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
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/atomic"

	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/stream"
	"github.com/rulego/fpcql/types"
)

// DefaultWriteTimeout bounds one INSERT
const DefaultWriteTimeout = 5 * time.Second

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// OpenPostgres opens and pings a PostgreSQL / TimescaleDB database
func OpenPostgres(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// SQLSink writes every row to a table:
//
//	CREATE TABLE rows (query TEXT, ts TIMESTAMPTZ, pass BIGINT, values JSONB)
//
// Values are a JSON object keyed by column name. Write failures are logged and counted;
// they never stop the query.
type SQLSink struct {
	db       *sql.DB
	table    string
	insert   string
	timeout  time.Duration
	log      logger.Logger
	written  atomic.Int64
	failures atomic.Int64
}

var _ stream.Handler = (*SQLSink)(nil)

// NewSQLSink creates a sink writing to table
func NewSQLSink(db *sql.DB, table string, log logger.Logger) (*SQLSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", types.ErrInvalidConfig, table)
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &SQLSink{
		db:      db,
		table:   table,
		insert:  "INSERT INTO " + table + " (query, ts, pass, values) VALUES ($1,$2,$3,$4)",
		timeout: DefaultWriteTimeout,
		log:     log,
	}, nil
}

// Name returns the sink name
func (s *SQLSink) Name() string { return "sql:" + s.table }

// Written returns the number of rows inserted
func (s *SQLSink) Written() int64 { return s.written.Load() }

// Failures returns the number of rows that could not be inserted
func (s *SQLSink) Failures() int64 { return s.failures.Load() }

// Write inserts one row
func (s *SQLSink) Write(ctx context.Context, query string, pass int64, columns []string, row types.Row) error {
	values := make(map[string]interface{}, len(row))
	for i, v := range row {
		name := fmt.Sprintf("col%d", i)
		if i < len(columns) {
			name = columns[i]
		}
		values[name] = v
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.insert, query, time.Now().UTC(), pass, raw); err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLSink) OnRow(q *stream.Query, row types.Row) {
	// the pass delivering this row is counted once it completes
	pass := q.Stats()[stream.PassCount] + 1
	if err := s.Write(context.Background(), q.Name(), pass, q.Columns(), row); err != nil {
		s.failures.Inc()
		s.log.Error("sql sink: %v", err)
		return
	}
	s.written.Inc()
}

func (s *SQLSink) OnError(q *stream.Query, err error) {
	s.log.Warn("sql sink: query %s failed after %d rows: %v", q.Name(), s.written.Load(), err)
}

func (s *SQLSink) OnComplete(q *stream.Query) {
	s.log.Info("sql sink: query %s completed, %d rows written", q.Name(), s.written.Load())
}
