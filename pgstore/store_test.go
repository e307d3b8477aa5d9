package pgstore

import (
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/output"
	"github.com/pithecene-io/lattice/types"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool failed: %v", err)
	}
	mock.ExpectPing()

	store, err := New(t.Context(), mock, "run-1", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store, mock
}

func TestNew_PingFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool failed: %v", err)
	}
	pingErr := errors.New("connection refused")
	mock.ExpectPing().WillReturnError(pingErr)

	_, err = New(t.Context(), mock, "run-1", nil)
	if !errors.Is(err, pingErr) {
		t.Errorf("expected ping error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_WriteVertices(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{TableVertices}, vertexColumns).WillReturnResult(2)

	units := []encoder.Record{
		{Kind: encoder.KindHeader, ElementType: types.ElementVertex, Label: "user"},
		{Kind: encoder.KindElement, ElementType: types.ElementVertex, Label: "user", ID: 1, IDOrigin: "source"},
		{Kind: encoder.KindElement, ElementType: types.ElementVertex, Label: "user", ID: 2, IDOrigin: "source",
			Properties: map[string]any{"name": "ada"}},
	}
	shard := output.Shard{ElementType: types.ElementVertex, Label: "user"}
	if err := store.WriteBatch(t.Context(), shard, units); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_WriteEdges(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{TableEdges}, edgeColumns).WillReturnResult(1)

	units := []encoder.Record{{
		Kind: encoder.KindElement, ElementType: types.ElementEdge, Label: "owns",
		From: 1, FromOrigin: "source", FromLabel: "user",
		To: 9, ToOrigin: "generated", ToLabel: "device",
	}}
	shard := output.Shard{ElementType: types.ElementEdge, Label: "owns"}
	if err := store.WriteBatch(t.Context(), shard, units); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_WriteLogs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{TableLogs}, logColumns).WillReturnResult(1)

	units := []encoder.Record{{
		Kind: encoder.KindElement, ElementType: types.ElementLog, Label: "info", Message: "root done",
	}}
	shard := output.Shard{ElementType: types.ElementLog, Label: "info"}
	if err := store.WriteBatch(t.Context(), shard, units); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_SkipsNoopAndHeaderOnly(t *testing.T) {
	store, mock := newMockStore(t)

	noop := output.Shard{ElementType: types.ElementNoop}
	if err := store.WriteBatch(t.Context(), noop, []encoder.Record{{Kind: encoder.KindElement}}); err != nil {
		t.Fatalf("WriteBatch(noop) failed: %v", err)
	}

	headers := []encoder.Record{{Kind: encoder.KindHeader, ElementType: types.ElementVertex, Label: "user"}}
	shard := output.Shard{ElementType: types.ElementVertex, Label: "user"}
	if err := store.WriteBatch(t.Context(), shard, headers); err != nil {
		t.Fatalf("WriteBatch(headers) failed: %v", err)
	}

	// No COPY expected.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_CopyFailure(t *testing.T) {
	store, mock := newMockStore(t)

	copyErr := errors.New("relation does not exist")
	mock.ExpectCopyFrom(pgx.Identifier{TableVertices}, vertexColumns).WillReturnError(copyErr)

	units := []encoder.Record{{Kind: encoder.KindElement, ElementType: types.ElementVertex, Label: "user", ID: 1}}
	err := store.WriteBatch(t.Context(), output.Shard{ElementType: types.ElementVertex, Label: "user"}, units)
	if !errors.Is(err, copyErr) {
		t.Errorf("expected copy error in chain, got %v", err)
	}
}

func TestStore_CopyCountMismatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{TableVertices}, vertexColumns).WillReturnResult(1)

	units := []encoder.Record{
		{Kind: encoder.KindElement, ElementType: types.ElementVertex, Label: "user", ID: 1},
		{Kind: encoder.KindElement, ElementType: types.ElementVertex, Label: "user", ID: 2},
	}
	err := store.WriteBatch(t.Context(), output.Shard{ElementType: types.ElementVertex, Label: "user"}, units)
	if err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestStore_EnsureSchemaAndDrop(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS graph_vertices")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta(dropSQL)).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	if err := store.EnsureSchema(t.Context()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if err := store.Drop(t.Context()); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_ThroughEncodedOutput(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{TableVertices}, vertexColumns).WillReturnResult(3)

	cfg := output.DefaultConfig()
	cfg.Policy = output.PolicyBuffered
	cfg.BufferRecords = 100
	out, err := output.New[encoder.Record]("postgres", encoder.NewRecordEncoder(nil), store, cfg)
	if err != nil {
		t.Fatalf("output.New failed: %v", err)
	}

	router := output.NewRouter(out)
	for i := range int64(3) {
		v := types.NewVertexEmitable(&types.Vertex{ID: types.SourceID(i), Label: "user"})
		if err := router.Write(t.Context(), v); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	mock.ExpectClose()
	if err := out.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarshalProperties(t *testing.T) {
	empty, err := marshalProperties(nil)
	if err != nil || string(empty) != "{}" {
		t.Errorf("expected {}, got %s (err %v)", empty, err)
	}
	b, err := marshalProperties(map[string]any{"a": 1})
	if err != nil || string(b) != `{"a":1}` {
		t.Errorf(`expected {"a":1}, got %s (err %v)`, b, err)
	}
}
