package reading

import (
	"context"
	"encoding/json"

	"backend-bustracker/internal/db"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// TopicAll receives every ingested reading. Readings with a device id are
// also published on a topic named after the device.
const TopicAll = "all"

const invalidPayloadMsg = "Invalid payload: latitude, longitude (numbers) and timestamp required"

// Publisher fans new readings out to live subscribers.
type Publisher interface {
	Broadcast(topic string, payload []byte)
}

type Service struct {
	db       db.Querier
	pub      Publisher
	validate *validator.Validate
}

func NewService(db db.Querier, pub Publisher) *Service {
	return &Service{db: db, pub: pub, validate: validator.New()}
}

// Insert validates and appends one reading, returning its id.
func (s *Service) Insert(ctx context.Context, input NewReading) (int64, error) {
	if err := s.validate.Struct(input); err != nil {
		return 0, &ValidationError{Msg: invalidPayloadMsg}
	}
	if !finite(*input.Latitude) || !finite(*input.Longitude) {
		return 0, &ValidationError{Msg: invalidPayloadMsg}
	}

	deviceID := input.DeviceID
	if deviceID != nil && *deviceID == "" {
		deviceID = nil
	}

	var id int64
	row := s.db.QueryRow(ctx, `
		INSERT INTO readings (device_id, timestamp, latitude, longitude)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, deviceID, input.Timestamp, *input.Latitude, *input.Longitude)
	if err := row.Scan(&id); err != nil {
		return 0, &StorageError{Op: "insert", Err: err}
	}

	s.publish(Reading{
		ID:        id,
		DeviceID:  deviceID,
		Timestamp: input.Timestamp,
		Latitude:  *input.Latitude,
		Longitude: *input.Longitude,
	})
	return id, nil
}

// Latest returns at most ClampLimit(limit) readings, newest first.
func (s *Service) Latest(ctx context.Context, limit int) ([]Reading, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, device_id, timestamp, latitude, longitude
		FROM readings
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`, ClampLimit(limit))
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Timestamp, &r.Latitude, &r.Longitude); err != nil {
			return nil, &StorageError{Op: "scan", Err: err}
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return readings, nil
}

// History is Latest reordered oldest to newest, the order ETA and map rendering expect.
func (s *Service) History(ctx context.Context, limit int) ([]Reading, error) {
	latest, err := s.Latest(ctx, limit)
	if err != nil {
		return nil, err
	}
	return Chronological(latest), nil
}

func (s *Service) publish(r Reading) {
	if s.pub == nil {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		log.WithField("id", r.ID).Warnf("encode reading for stream: %v", err)
		return
	}
	s.pub.Broadcast(TopicAll, payload)
	if r.DeviceID != nil {
		s.pub.Broadcast(*r.DeviceID, payload)
	}
}
