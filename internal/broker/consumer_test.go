package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaslui/hems/sensor-ingest/internal/model"
)

type fakeSource struct {
	mu        sync.Mutex
	pending   []kafka.Message
	fetchErrs []error
	committed []int64
}

func (f *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(f.pending) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := f.pending[0]
	f.pending = f.pending[1:]
	return m, nil
}

func (f *fakeSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

type fakeHandler struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeHandler) HandleRaw(_ context.Context, raw json.RawMessage) (model.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, string(raw))
	if string(raw) == "bad" {
		return model.Ack{}, errors.New("malformed input")
	}
	return model.Ack{Status: "ok"}, nil
}

func TestConsumerHandlesAndCommitsEveryRecord(t *testing.T) {
	src := &fakeSource{
		pending: []kafka.Message{
			{Offset: 1, Value: []byte(`{"deviceid":"d1"}`)},
			{Offset: 2, Value: []byte("bad")},
			{Offset: 3, Value: []byte(`{"deviceid":"d2"}`)},
		},
		fetchErrs: []error{errors.New("leader not available")},
	}
	h := &fakeHandler{}

	err := NewConsumer(src, h, 2, testr.New(t)).Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{`{"deviceid":"d1"}`, "bad", `{"deviceid":"d2"}`}, h.seen)
	require.NotEmpty(t, src.committed)
	assert.IsIncreasing(t, src.committed)
	assert.Equal(t, int64(3), src.committed[len(src.committed)-1])
}

// slowFirstHandler holds offset 0 until every other record was handled.
type slowFirstHandler struct {
	src     *fakeSource
	total   int
	mu      sync.Mutex
	handled int
	release chan struct{}

	committedWhileHeld []int64
}

func (h *slowFirstHandler) HandleRaw(_ context.Context, raw json.RawMessage) (model.Ack, error) {
	if string(raw) == "0" {
		<-h.release
		h.src.mu.Lock()
		h.committedWhileHeld = append([]int64(nil), h.src.committed...)
		h.src.mu.Unlock()
		return model.Ack{Status: "ok"}, nil
	}
	h.mu.Lock()
	h.handled++
	if h.handled == h.total-1 {
		close(h.release)
	}
	h.mu.Unlock()
	return model.Ack{Status: "ok"}, nil
}

func TestConsumerNeverCommitsPastUnfinishedRecord(t *testing.T) {
	src := &fakeSource{}
	for i := int64(0); i < 4; i++ {
		src.pending = append(src.pending, kafka.Message{Partition: 0, Offset: i, Value: []byte(strconv.FormatInt(i, 10))})
	}
	h := &slowFirstHandler{src: src, total: 4, release: make(chan struct{})}

	require.NoError(t, NewConsumer(src, h, 4, testr.New(t)).Run(context.Background()))

	assert.Empty(t, h.committedWhileHeld)
	require.NotEmpty(t, src.committed)
	assert.IsIncreasing(t, src.committed)
	assert.Equal(t, int64(3), src.committed[len(src.committed)-1])
}

func TestWatermarksAdvanceOnlyOverHandledPrefix(t *testing.T) {
	w := newWatermarks()
	msgs := []kafka.Message{
		{Topic: "in", Partition: 0, Offset: 10},
		{Topic: "in", Partition: 0, Offset: 11},
		{Topic: "in", Partition: 1, Offset: 5},
		{Topic: "in", Partition: 0, Offset: 14},
	}
	for _, m := range msgs {
		w.track(m)
	}

	_, ok := w.complete(msgs[1])
	assert.False(t, ok)

	upTo, ok := w.complete(msgs[2])
	require.True(t, ok)
	assert.Equal(t, 1, upTo.Partition)
	assert.Equal(t, int64(5), upTo.Offset)

	upTo, ok = w.complete(msgs[0])
	require.True(t, ok)
	assert.Equal(t, int64(11), upTo.Offset)

	upTo, ok = w.complete(msgs[3])
	require.True(t, ok)
	assert.Equal(t, int64(14), upTo.Offset)
	assert.Empty(t, w.parts)
}

func TestConsumerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{fetchErrs: []error{context.Canceled}}
	err := NewConsumer(src, &fakeHandler{}, 0, testr.New(t)).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, src.committed)
}
