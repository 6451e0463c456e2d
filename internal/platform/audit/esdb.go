package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
)

const (
	StreamName = "triage-audit"
	EventType  = "AuditEntry"
)

// ESDBSink appends entries to an EventStoreDB stream, which cannot be
// rewritten after the fact.
type ESDBSink struct {
	client *esdb.Client
	stream string
}

// NewESDBSink connects to the given esdb:// connection string.
func NewESDBSink(connString string) (*ESDBSink, error) {
	settings, err := esdb.ParseConnectionString(connString)
	if err != nil {
		return nil, fmt.Errorf("parse esdb connection string: %w", err)
	}
	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("create esdb client: %w", err)
	}
	return &ESDBSink{client: client, stream: StreamName}, nil
}

func (s *ESDBSink) Record(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	event := esdb.EventData{
		EventID:     uuid.New(),
		EventType:   EventType,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
	}
	if _, err := s.client.AppendToStream(ctx, s.stream, esdb.AppendToStreamOptions{}, event); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *ESDBSink) Close() error {
	return s.client.Close()
}
