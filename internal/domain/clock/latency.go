package clock

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// Latencies is a measured network latency profile for calibration
// reporting.
type Latencies struct {
	Offset   float64 // representative offset, ms
	RTT      float64 // representative round-trip time, ms
	Upload   float64 // one-way upload latency, ms
	Download float64 // one-way download latency, ms
	Method   string  // strategy that produced the profile
}

// latencyStrategy is one way of measuring the latency profile. Strategies
// are tried in priority order; the first valid result wins.
type latencyStrategy interface {
	name() string
	measure(ctx context.Context) (Latencies, error)
}

// MeasureLatencies measures the latency profile using the best available
// strategy: the asymmetric 4-timestamp exchange when the source supports
// it, the symmetric half-RTT split otherwise.
func (e *Estimator) MeasureLatencies(ctx context.Context) (Latencies, error) {
	var strategies []latencyStrategy
	if e.echo != nil {
		strategies = append(strategies, &asymmetricStrategy{e: e})
	}
	strategies = append(strategies, &symmetricStrategy{e: e})

	for _, s := range strategies {
		lat, err := s.measure(ctx)
		if err != nil {
			e.log.Debug(ctx, "latency strategy failed",
				logger.String("strategy", s.name()), logger.Error(err))
			continue
		}
		lat.Method = s.name()
		return lat, nil
	}
	return Latencies{}, ErrNoValidSamples
}

// asymmetricStrategy measures upload and download independently via the
// 4-timestamp exchange.
type asymmetricStrategy struct {
	e *Estimator
}

func (s *asymmetricStrategy) name() string { return "asymmetric" }

func (s *asymmetricStrategy) measure(ctx context.Context) (Latencies, error) {
	e := s.e
	survivors := make([]model.EchoSample, 0, e.syncSamples)
	for i := 0; i < e.syncSamples; i++ {
		if i > 0 {
			e.clock.Sleep(e.syncSpacing)
		}
		if ctx.Err() != nil {
			break
		}
		t1 := e.mono.NowMs()
		echo, err := e.echo.Exchange(ctx, t1)
		if err != nil {
			continue
		}
		t4 := e.mono.NowMs()
		sample := model.EchoSample{
			T1: echo.EchoedClientSend,
			T2: echo.ServerReceive,
			T3: echo.ServerSend,
			T4: t4,
		}
		// Negative one-way latencies or a congested round trip mean the
		// exchange cannot be trusted.
		if sample.RTT() > e.echoRTTOutlier ||
			sample.UploadLatency() < 0 || sample.DownloadLatency() < 0 {
			metrics.RecordSampleRejected()
			continue
		}
		metrics.RecordRoundTrip(sample.RTT())
		survivors = append(survivors, sample)
	}
	if len(survivors) == 0 {
		return Latencies{}, ErrNoValidSamples
	}

	// The RTT-median survivor is the representative offset; upload and
	// download are averaged over all survivors for reporting.
	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].RTT() < survivors[j].RTT()
	})
	median := survivors[len(survivors)/2]

	uploads := make([]float64, len(survivors))
	downloads := make([]float64, len(survivors))
	for i, sv := range survivors {
		uploads[i] = sv.UploadLatency()
		downloads[i] = sv.DownloadLatency()
	}

	return Latencies{
		Offset:   median.Offset(),
		RTT:      median.RTT(),
		Upload:   stat.Mean(uploads, nil),
		Download: stat.Mean(downloads, nil),
	}, nil
}

// symmetricStrategy treats upload and download as equal halves of the best
// observed round trip.
type symmetricStrategy struct {
	e *Estimator
}

func (s *symmetricStrategy) name() string { return "symmetric" }

func (s *symmetricStrategy) measure(ctx context.Context) (Latencies, error) {
	e := s.e
	samples := e.collectBurst(ctx, e.syncSamples, e.syncSpacing)
	best, ok := e.bestSample(samples)
	if !ok {
		return Latencies{}, ErrNoValidSamples
	}
	return Latencies{
		Offset:   best.EstimatedOffset(),
		RTT:      best.RTT,
		Upload:   best.RTT / 2,
		Download: best.RTT / 2,
	}, nil
}
