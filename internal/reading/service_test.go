package reading

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
)

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (p *recordingPublisher) Broadcast(topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func TestInsertReturnsIncreasingIDs(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock, nil)

	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs(strPtr("bus-1"), "2024-01-01T10:00:00Z", 19.07, 72.87).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs(strPtr("bus-1"), "2024-01-01T10:00:10Z", 19.08, 72.88).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))

	first, err := svc.Insert(context.Background(), NewReading{DeviceID: strPtr("bus-1"), Timestamp: "2024-01-01T10:00:00Z", Latitude: floatPtr(19.07), Longitude: floatPtr(72.87)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	second, err := svc.Insert(context.Background(), NewReading{DeviceID: strPtr("bus-1"), Timestamp: "2024-01-01T10:00:10Z", Latitude: floatPtr(19.08), Longitude: floatPtr(72.88)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if second <= first {
		t.Fatalf("expected increasing ids, got %d then %d", first, second)
	}

	mock.ExpectQuery(`SELECT id, device_id, timestamp, latitude, longitude`).
		WithArgs(1).
		WillReturnRows(pgxmock.NewRows([]string{"id", "device_id", "timestamp", "latitude", "longitude"}).
			AddRow(int64(2), strPtr("bus-1"), "2024-01-01T10:00:10Z", 19.08, 72.88))

	latest, err := svc.Latest(context.Background(), 1)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 1 || latest[0].ID != second || latest[0].Timestamp != "2024-01-01T10:00:10Z" {
		t.Fatalf("unexpected latest: %+v", latest)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertZeroCoordinatesAreValid(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs((*string)(nil), "2024-01-01T00:00:00Z", 0.0, 0.0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	svc := NewService(mock, nil)
	id, err := svc.Insert(context.Background(), NewReading{Timestamp: "2024-01-01T00:00:00Z", Latitude: floatPtr(0), Longitude: floatPtr(0)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 7 {
		t.Fatalf("unexpected id %d", id)
	}
}

func TestInsertEmptyDeviceIDStoredAsNull(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs((*string)(nil), "t", 1.0, 2.0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	svc := NewService(mock, nil)
	if _, err := svc.Insert(context.Background(), NewReading{DeviceID: strPtr(""), Timestamp: "t", Latitude: floatPtr(1), Longitude: floatPtr(2)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestInsertValidation(t *testing.T) {
	svc := NewService(nil, nil)

	cases := []NewReading{
		{Timestamp: "", Latitude: floatPtr(1), Longitude: floatPtr(2)},
		{Timestamp: "2024-01-01", Longitude: floatPtr(2)},
		{Timestamp: "2024-01-01", Latitude: floatPtr(1)},
		{Timestamp: "2024-01-01", Latitude: floatPtr(math.NaN()), Longitude: floatPtr(2)},
		{Timestamp: "2024-01-01", Latitude: floatPtr(1), Longitude: floatPtr(math.Inf(-1))},
	}
	for i, in := range cases {
		_, err := svc.Insert(context.Background(), in)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestInsertStorageError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs((*string)(nil), "t", 1.0, 2.0).
		WillReturnError(errStore)

	svc := NewService(mock, nil)
	_, err = svc.Insert(context.Background(), NewReading{Timestamp: "t", Latitude: floatPtr(1), Longitude: floatPtr(2)})
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if !errors.Is(err, errStore) {
		t.Fatalf("expected wrapped cause")
	}
}

func TestInsertPublishes(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs(strPtr("bus-9"), "t", 1.0, 2.0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	pub := &recordingPublisher{}
	svc := NewService(mock, pub)
	if _, err := svc.Insert(context.Background(), NewReading{DeviceID: strPtr("bus-9"), Timestamp: "t", Latitude: floatPtr(1), Longitude: floatPtr(2)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(pub.topics) != 2 || pub.topics[0] != TopicAll || pub.topics[1] != "bus-9" {
		t.Fatalf("unexpected topics: %v", pub.topics)
	}
	var got Reading
	if err := json.Unmarshal(pub.payloads[0], &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.ID != 3 || got.Latitude != 1 || got.Longitude != 2 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestLatestClampsLimit(t *testing.T) {
	cases := map[int]int{0: 1, -5: 1, 1: 1, 250: 250, 1000: 1000, 1001: 1000, 1 << 30: 1000}
	for requested, clamped := range cases {
		mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
		if err != nil {
			t.Fatalf("mock pool: %v", err)
		}

		mock.ExpectQuery(`ORDER BY timestamp DESC, id DESC`).
			WithArgs(clamped).
			WillReturnRows(pgxmock.NewRows([]string{"id", "device_id", "timestamp", "latitude", "longitude"}))

		svc := NewService(mock, nil)
		rows, err := svc.Latest(context.Background(), requested)
		if err != nil {
			t.Fatalf("latest(%d): %v", requested, err)
		}
		if rows == nil || len(rows) > clamped {
			t.Fatalf("latest(%d): unexpected rows %v", requested, rows)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("latest(%d): unmet expectations: %v", requested, err)
		}
		mock.Close()
	}
}

func TestLatestQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, device_id, timestamp, latitude, longitude`).
		WithArgs(DefaultLimit).
		WillReturnError(errStore)

	svc := NewService(mock, nil)
	_, err = svc.Latest(context.Background(), DefaultLimit)
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestHistoryIsChronological(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, device_id, timestamp, latitude, longitude`).
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "device_id", "timestamp", "latitude", "longitude"}).
			AddRow(int64(3), nil, "2024-01-01T10:00:20Z", 1.2, 2.2).
			AddRow(int64(2), nil, "2024-01-01T10:00:10Z", 1.1, 2.1).
			AddRow(int64(1), nil, "2024-01-01T10:00:00Z", 1.0, 2.0))

	svc := NewService(mock, nil)
	history, err := svc.History(context.Background(), 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 || history[0].ID != 1 || history[2].ID != 3 {
		t.Fatalf("expected oldest first, got %+v", history)
	}
	if history[0].DeviceID != nil {
		t.Fatalf("expected nil device id")
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2024-01-01T10:00:00Z", "2024-01-01T10:00:00.123+05:30", "2024-01-01 10:00:00"} {
		if _, err := ParseTimestamp(s); err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
	}
	if _, err := ParseTimestamp("not a date"); err == nil {
		t.Fatalf("expected parse error")
	}
}

var errStore = errors.New("store error")
