package monitoring

import (
	"context"
	"time"

	"soundradius/internal/core/domain"

	"github.com/pion/rtcp"
	"go.uber.org/zap"
)

// NetworkSampler derives network samples from RTCP receiver reports and feeds
// them to an observer (normally the capture controller). The effective class
// is a coarse bucketing of round-trip time and loss, comparable to what
// browser connection APIs expose.
type NetworkSampler struct {
	observe func(ctx context.Context, sample domain.NetworkSample)
	logger  *zap.SugaredLogger
}

func NewNetworkSampler(observe func(ctx context.Context, sample domain.NetworkSample), logger *zap.SugaredLogger) *NetworkSampler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &NetworkSampler{observe: observe, logger: logger}
}

// ProcessRTCP extracts a sample from one RTCP batch. Batches with no receiver
// reports produce no sample.
func (s *NetworkSampler) ProcessRTCP(ctx context.Context, packets []rtcp.Packet, observedFPS float64) {
	var totalLoss float64
	var totalRTT time.Duration
	reports := 0

	for _, packet := range packets {
		rr, ok := packet.(*rtcp.ReceiverReport)
		if !ok {
			continue
		}
		for _, report := range rr.Reports {
			totalLoss += float64(report.FractionLost) / 255.0
			if report.LastSenderReport != 0 && report.Delay != 0 {
				totalRTT += time.Duration(report.Delay) * time.Second / 65536
			}
			reports++
		}
	}

	if reports == 0 {
		return
	}

	avgLoss := totalLoss / float64(reports)
	avgRTT := totalRTT / time.Duration(reports)

	sample := domain.NetworkSample{
		RoundTrip:         avgRTT,
		EffectiveClass:    classify(avgRTT, avgLoss),
		ObservedFrameRate: observedFPS,
		SampledAt:         time.Now(),
	}

	s.logger.Debugw("network sample",
		"rtt", avgRTT,
		"loss", avgLoss,
		"effective_class", sample.EffectiveClass,
	)
	s.observe(ctx, sample)
}

// classify buckets link quality into the effective classes the quality policy
// understands.
func classify(rtt time.Duration, loss float64) string {
	switch {
	case rtt > 800*time.Millisecond || loss > 0.15:
		return "2g"
	case rtt > 300*time.Millisecond || loss > 0.05:
		return "3g"
	default:
		return "4g"
	}
}
