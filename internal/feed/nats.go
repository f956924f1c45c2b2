package feed

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"adsb_tracker/internal/adsb"
)

// Subscriber consumes sighting batches published as feed-response JSON on
// a NATS subject.
type Subscriber struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// Subscribe connects to a NATS server and delivers each decoded batch to
// handler. Undecodable messages are logged and dropped; the subscription
// stays alive.
func Subscribe(url, subject string, handler func([]adsb.Sighting)) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		sightings, err := adsb.DecodeFeed(msg.Data)
		if err != nil {
			log.Printf("nats: drop undecodable message on %s: %v", subject, err)
			return
		}
		handler(sightings)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	return &Subscriber{conn: conn, sub: sub}, nil
}

// Close drains the subscription and closes the connection.
func (s *Subscriber) Close() {
	_ = s.sub.Drain()
	s.conn.Close()
}
