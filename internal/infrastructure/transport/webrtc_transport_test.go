package transport

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	batches [][]rtcp.Packet
}

func (o *recordingObserver) ProcessRTCP(_ context.Context, packets []rtcp.Packet, _ float64) {
	o.mu.Lock()
	o.batches = append(o.batches, packets)
	o.mu.Unlock()
}

func TestTransport_ForwardsRTCPToObserver(t *testing.T) {
	observer := &recordingObserver{}
	tr := NewWebRTCTransport(WebRTCConfig{}, nil, observer, nil)

	report, err := rtcp.Marshal([]rtcp.Packet{&rtcp.ReceiverReport{
		Reports: []rtcp.ReceptionReport{{FractionLost: 13, LastSenderReport: 1, Delay: 32768}},
	}})
	require.NoError(t, err)

	reads := [][]byte{report, []byte("not rtcp")}
	tr.forwardRTCP(func(buf []byte) (int, error) {
		if len(reads) == 0 {
			return 0, io.EOF
		}
		next := reads[0]
		reads = reads[1:]
		return copy(buf, next), nil
	})

	// One well-formed batch forwarded; the malformed one discarded.
	require.Len(t, observer.batches, 1)
	require.Len(t, observer.batches[0], 1)
	rr, ok := observer.batches[0][0].(*rtcp.ReceiverReport)
	require.True(t, ok)
	assert.Equal(t, uint8(13), rr.Reports[0].FractionLost)
}

func TestTransport_NilObserverAllowed(t *testing.T) {
	tr := NewWebRTCTransport(WebRTCConfig{}, nil, nil, nil)
	assert.Nil(t, tr.rtcp)
}
