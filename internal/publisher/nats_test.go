package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/subway/models"
)

type capturedMsg struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []capturedMsg
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, capturedMsg{subject: subject, data: data})
	return nil
}

type fakeMetrics struct {
	published, errs, observed int
}

func (m *fakeMetrics) NATSPublishedInc() { m.published++ }
func (m *fakeMetrics) NATSPublishErrInc() { m.errs++ }
func (m *fakeMetrics) PublishObserve(time.Duration) { m.observed++ }
func (m *fakeMetrics) NATSSetConnected(bool) {}

func TestPublishLineChange(t *testing.T) {
	nc := &fakeConn{}
	m := &fakeMetrics{}
	p := newPublisher(nc, "metro.", false, m)

	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	err := p.PublishLineChange(models.LineChange{
		ID:            "c0ffee",
		Type:          models.ChangeStationRemoved,
		LineID:        2,
		LineName:      "Line 2",
		StationID:     4,
		Stations:      []models.StationID{1, 2, 3},
		TotalDistance: 15,
		At:            at,
	})
	require.NoError(t, err)
	require.Len(t, nc.msgs, 1)
	assert.Equal(t, "metro.lines.2", nc.msgs[0].subject)

	var ev LineEvent
	require.NoError(t, json.Unmarshal(nc.msgs[0].data, &ev))
	assert.Equal(t, models.ChangeStationRemoved, ev.Type)
	assert.Equal(t, models.StationID(4), ev.StationID)
	assert.Equal(t, []models.StationID{1, 2, 3}, ev.Stations)
	assert.True(t, ev.At.Equal(at))

	assert.Equal(t, 1, m.published)
	assert.Equal(t, 1, m.observed)
}

func TestPublishFailureIsCounted(t *testing.T) {
	nc := &fakeConn{err: errors.New("nats: connection closed")}
	m := &fakeMetrics{}
	p := newPublisher(nc, "", false, m)

	err := p.PublishLineChange(models.LineChange{LineID: 1, Type: models.ChangeLineDeleted})
	assert.Error(t, err)
	assert.Equal(t, 1, m.errs)
	assert.Equal(t, 0, m.published)
	assert.Equal(t, "subway.lines.1", p.Subject(1))
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "Line_2", subjectToken(" Line 2 "))
	assert.Equal(t, "a_b_c", subjectToken("a.b>c"))
	assert.Equal(t, "_", subjectToken(""))
}
