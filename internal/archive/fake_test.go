package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB stores inserted rows keyed by offer ID.
type fakeDB struct {
	mu       sync.Mutex
	rows     map[string][]any
	batches  int
	execSQL  []string
	batchErr error
	queryErr error
	result   [][]any
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: make(map[string][]any)}
}

func (db *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.batches++
	res := &fakeBatchResults{}
	for _, q := range b.QueuedQueries {
		if db.batchErr != nil {
			res.errs = append(res.errs, db.batchErr)
			res.tags = append(res.tags, pgconn.CommandTag{})
			continue
		}
		id := q.Arguments[0].(string)
		if _, exists := db.rows[id]; exists {
			res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 0"))
		} else {
			db.rows[id] = q.Arguments
			res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 1"))
		}
		res.errs = append(res.errs, nil)
	}
	return res
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return &fakeRows{data: db.result, pos: -1}, nil
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execSQL = append(db.execSQL, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (db *fakeDB) count() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.rows)
}

func (db *fakeDB) row(id string) []any {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rows[id]
}

type fakeBatchResults struct {
	tags []pgconn.CommandTag
	errs []error
	i    int
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if r.i >= len(r.tags) {
		return pgconn.CommandTag{}, errors.New("no more results")
	}
	tag, err := r.tags[r.i], r.errs[r.i]
	r.i++
	return tag, err
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeBatchResults) QueryRow() pgx.Row       { return nil }
func (r *fakeBatchResults) Close() error            { return nil }

// fakeRows serves offer rows in the column order of selectOffers.
type fakeRows struct {
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	src := r.data[r.pos]
	if len(dest) != len(src) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = src[i].(string)
		case *int64:
			*p = src[i].(int64)
		case *time.Time:
			*p = src[i].(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}
