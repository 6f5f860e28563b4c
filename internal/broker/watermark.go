package broker

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

type inflight struct {
	msg  kafka.Message
	done bool
}

// watermarks keeps, per partition, the fetched records in fetch order so that
// only a fully handled prefix is ever committed.
type watermarks struct {
	mu    sync.Mutex
	parts map[partitionKey][]*inflight
}

func newWatermarks() *watermarks {
	return &watermarks{parts: make(map[partitionKey][]*inflight)}
}

func keyOf(m kafka.Message) partitionKey {
	return partitionKey{topic: m.Topic, partition: m.Partition}
}

// track must be called in fetch order, before the record is handed to a worker.
func (w *watermarks) track(m kafka.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := keyOf(m)
	w.parts[k] = append(w.parts[k], &inflight{msg: m})
}

// complete marks m as handled. It returns the last record of the handled
// prefix of m's partition, and false when that prefix did not grow.
func (w *watermarks) complete(m kafka.Message) (kafka.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := keyOf(m)
	q := w.parts[k]
	for _, f := range q {
		if f.msg.Offset == m.Offset {
			f.done = true
			break
		}
	}

	var (
		last kafka.Message
		ok   bool
	)
	for len(q) > 0 && q[0].done {
		last, ok = q[0].msg, true
		q = q[1:]
	}
	if len(q) == 0 {
		delete(w.parts, k)
	} else {
		w.parts[k] = q
	}
	return last, ok
}
