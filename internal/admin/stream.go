package admin

import (
	"context"
	"time"
)

type Heartbeat struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Heartbeats calls emit once immediately and then on every tick until ctx is
// done or emit fails. It returns nil when ctx ends.
func (s *Service) Heartbeats(ctx context.Context, emit func(Heartbeat) error) error {
	interval := s.heartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		hb := Heartbeat{Type: "heartbeat", Timestamp: s.now().Format(time.RFC3339)}
		if err := emit(hb); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
