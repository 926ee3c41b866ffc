package mqtt

import "github.com/rs/zerolog/log"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// replayBuffer holds messages published while the broker is unreachable.
//
// Retained messages (printer status, lifecycle snapshots) describe current
// state, so only the newest per topic is kept and they are never evicted.
// Everything else (telemetry, printer actions) goes into a fixed-capacity
// ring that drops its oldest entry when full. Not safe for concurrent use;
// the caller must synchronize.
type replayBuffer struct {
	ring     []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int

	retained map[string]bufferedMsg
	order    []string // retained topics, oldest update first
}

func newReplayBuffer(capacity int) *replayBuffer {
	return &replayBuffer{
		ring:     make([]bufferedMsg, capacity),
		capacity: capacity,
		retained: make(map[string]bufferedMsg),
	}
}

func (r *replayBuffer) push(msg bufferedMsg) {
	if msg.retained {
		r.setRetained(msg)
		return
	}

	if r.count == r.capacity {
		if r.dropped == 0 {
			log.Warn().Int("capacity", r.capacity).Msg("mqtt: buffer full, dropping oldest telemetry")
		}
		r.dropped++
		// head already points at the oldest entry
		r.ring[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.ring[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *replayBuffer) setRetained(msg bufferedMsg) {
	if _, ok := r.retained[msg.topic]; ok {
		for i, t := range r.order {
			if t == msg.topic {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.retained[msg.topic] = msg
	r.order = append(r.order, msg.topic)
}

// drainAll empties the buffer. Ring messages come first in publish order,
// then the latest retained message per topic, so the broker ends up holding
// the newest state.
func (r *replayBuffer) drainAll() []bufferedMsg {
	if r.len() == 0 {
		return nil
	}

	result := make([]bufferedMsg, 0, r.len())
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result = append(result, r.ring[(start+i)%r.capacity])
	}
	for _, t := range r.order {
		result = append(result, r.retained[t])
	}

	if r.dropped > 0 {
		log.Warn().Int("dropped", r.dropped).Msg("mqtt: telemetry lost while disconnected")
	}

	r.count = 0
	r.head = 0
	r.dropped = 0
	r.retained = make(map[string]bufferedMsg)
	r.order = nil
	return result
}

func (r *replayBuffer) len() int {
	return r.count + len(r.order)
}
