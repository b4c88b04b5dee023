package tap

import (
	"fmt"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/logger"
	"github.com/tphakala/framebridge/internal/observability/metrics"
)

// node is the processing node installed in the host graph for one session.
// Its pool is fixed at creation so late callbacks after removal land in a
// released pool and are refused.
type node struct {
	input *Input
	pool  *audiocore.BlockPool
}

// Process runs on the host audio thread
func (n *node) Process(in, out []float32, frames uint32, inChannels, outChannels int) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			n.input.reject(metrics.ReasonPanic)
			n.input.failureLog.Do(func() {
				n.input.log.Error("tap callback failed, block skipped",
					logger.String("panic", fmt.Sprint(r)))
			})
			result = ResultSkip
		}
	}()

	tap := n.input
	if inChannels != outChannels {
		tap.reject(metrics.ReasonChannelMismatch)
		tap.mismatchLog.Do(func() {
			tap.log.Warn("tap callback channel mismatch, block skipped",
				logger.Int("in_channels", inChannels),
				logger.Int("out_channels", outChannels))
		})
		return ResultSkip
	}

	samples := int(frames) * inChannels
	if samples > len(in) || samples > len(out) {
		tap.reject(metrics.ReasonShortBuffer)
		tap.failureLog.Do(func() {
			tap.log.Error("tap callback buffers shorter than frame count, block skipped",
				logger.Int("samples", samples),
				logger.Int("in_len", len(in)),
				logger.Int("out_len", len(out)))
		})
		return ResultSkip
	}

	block := in[:samples]
	copy(out[:samples], block)

	status := n.pool.Push(block)
	if !status.Stored {
		tap.dropped.Add(1)
		tap.metrics.RecordBlockDropped(metrics.InputTap)
		tap.dropLog.Do(func() {
			tap.log.Warn("tap block dropped, pool at capacity or released",
				logger.Int("filled", status.Filled),
				logger.Int("capacity", status.Capacity))
		})
		return ResultOK
	}

	tap.captured.Add(1)
	tap.metrics.RecordBlockCaptured(metrics.InputTap)
	if status.Grew || status.Resized {
		tap.metrics.UpdatePool(metrics.InputTap, status.Capacity, status.Filled)
	}
	if status.Resized {
		tap.log.Debug("tap block size changed, slot resized",
			logger.Int("samples", samples))
	}
	if status.ThresholdCrossed {
		tap.warnings.Add(1)
		tap.metrics.RecordThresholdWarning(metrics.InputTap)
		tap.log.Warn("tap block pool is not being drained fast enough",
			logger.Int("filled", status.Filled),
			logger.Int("threshold", tap.opts.WarnThreshold),
			logger.Int("capacity", status.Capacity))
	}
	return ResultOK
}

func (in *Input) reject(reason string) {
	in.rejected.Add(1)
	in.metrics.RecordBlockRejected(metrics.InputTap, reason)
}
