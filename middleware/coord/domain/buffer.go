package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Item é o documento guardado na fila deduplicada.
type Item struct {
	Hash       string            `json:"hash"`
	Group      string            `json:"group"`
	Text       string            `json:"text"`
	Normalized string            `json:"normalized"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// RecentFunc informa se o hash foi servido recentemente a quem está consumindo.
type RecentFunc func(ctx context.Context, hash string) bool

type PutOutcome int

const (
	PutInserted PutOutcome = iota
	PutDuplicate
	PutInvalid
	PutUnavailable
)

func (o PutOutcome) Inserted() bool { return o == PutInserted }

func (o PutOutcome) String() string {
	switch o {
	case PutInserted:
		return "inserted"
	case PutDuplicate:
		return "duplicate"
	case PutInvalid:
		return "invalid"
	case PutUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// PutSummary agrega o resultado de um PutMany.
type PutSummary struct {
	Inserted    int `json:"inserted"`
	Duplicates  int `json:"duplicates"`
	Skipped     int `json:"skipped"`
	Unavailable int `json:"unavailable"`
}

func (s *PutSummary) Add(o PutOutcome) {
	switch o {
	case PutInserted:
		s.Inserted++
	case PutDuplicate:
		s.Duplicates++
	case PutInvalid:
		s.Skipped++
	case PutUnavailable:
		s.Unavailable++
	}
}
