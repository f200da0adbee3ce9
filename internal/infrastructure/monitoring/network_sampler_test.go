package monitoring

import (
	"context"
	"testing"
	"time"

	"soundradius/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiverReport(fractionLost uint8, delay uint32) *rtcp.ReceiverReport {
	return &rtcp.ReceiverReport{
		Reports: []rtcp.ReceptionReport{{
			FractionLost:     fractionLost,
			LastSenderReport: 1,
			Delay:            delay,
		}},
	}
}

func collectSamples() (*[]domain.NetworkSample, func(context.Context, domain.NetworkSample)) {
	samples := &[]domain.NetworkSample{}
	return samples, func(_ context.Context, s domain.NetworkSample) {
		*samples = append(*samples, s)
	}
}

func TestNetworkSampler_Classification(t *testing.T) {
	tests := []struct {
		name         string
		fractionLost uint8
		delay        uint32 // units of 1/65536 s
		wantClass    string
	}{
		{"clean link", 0, 65536 / 20, "4g"},                 // 50ms
		{"elevated rtt", 0, 65536 / 2, "3g"},                // 500ms
		{"moderate loss", 26, 65536 / 20, "3g"},             // ~10% loss
		{"severe rtt", 0, 65536, "2g"},                      // 1s
		{"severe loss", 51, 65536 / 20, "2g"},               // 20% loss
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, observe := collectSamples()
			sampler := NewNetworkSampler(observe, nil)

			sampler.ProcessRTCP(context.Background(), []rtcp.Packet{receiverReport(tt.fractionLost, tt.delay)}, 30)

			require.Len(t, *samples, 1)
			assert.Equal(t, tt.wantClass, (*samples)[0].EffectiveClass)
			assert.Equal(t, 30.0, (*samples)[0].ObservedFrameRate)
		})
	}
}

func TestNetworkSampler_AveragesAcrossReports(t *testing.T) {
	samples, observe := collectSamples()
	sampler := NewNetworkSampler(observe, nil)

	packets := []rtcp.Packet{
		receiverReport(0, 65536/4), // 250ms
		receiverReport(0, 65536/2), // 500ms
	}
	sampler.ProcessRTCP(context.Background(), packets, 24)

	require.Len(t, *samples, 1)
	assert.Equal(t, 375*time.Millisecond, (*samples)[0].RoundTrip)
	assert.Equal(t, "3g", (*samples)[0].EffectiveClass)
}

func TestNetworkSampler_EmptyBatchProducesNoSample(t *testing.T) {
	samples, observe := collectSamples()
	sampler := NewNetworkSampler(observe, nil)

	sampler.ProcessRTCP(context.Background(), nil, 30)
	sampler.ProcessRTCP(context.Background(), []rtcp.Packet{&rtcp.SenderReport{}}, 30)

	assert.Empty(t, *samples)
}
