package export

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
)

const (
	componentExport = "audiocore.export"
	wavBitDepth     = 16
	wavPCMFormat    = 1
	maxInt16        = 32767
)

// WAVSink encodes frames as 16-bit PCM WAV
type WAVSink struct {
	path   string
	file   *os.File
	out    io.WriteSeeker
	enc    *wav.Encoder
	buf    audio.IntBuffer
	format audio.Format
	log    logger.Logger

	samples uint64
}

var _ FrameSink = (*WAVSink)(nil)

// NewWAVSink writes to path, created at Begin
func NewWAVSink(path string, log logger.Logger) *WAVSink {
	return &WAVSink{path: path, log: loggerOr(log)}
}

// NewWAVSinkWriter writes to an existing WriteSeeker. Close does not close it.
func NewWAVSinkWriter(out io.WriteSeeker, log logger.Logger) *WAVSink {
	return &WAVSink{out: out, log: loggerOr(log)}
}

// Format returns FormatWAV
func (s *WAVSink) Format() Format {
	return FormatWAV
}

// Begin opens the destination and writes the WAV header
func (s *WAVSink) Begin(channels uint16, sampleRate int) error {
	if s.enc != nil {
		return errors.New(nil).
			Component(componentExport).
			Category(errors.CategoryState).
			Context("error", "wav sink already started").
			Build()
	}
	if channels == 0 || sampleRate <= 0 {
		return errors.Newf("invalid wav format").
			Component(componentExport).
			Category(errors.CategoryValidation).
			FormatContext(int(channels), sampleRate).
			Build()
	}

	if s.out == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return errors.New(err).
				Component(componentExport).
				Category(errors.CategoryFileIO).
				Context("path", s.path).
				Build()
		}
		file, err := os.Create(s.path)
		if err != nil {
			return errors.New(err).
				Component(componentExport).
				Category(errors.CategoryFileIO).
				Context("path", s.path).
				Context("operation", "create").
				Build()
		}
		s.file = file
		s.out = file
	}

	s.format = audio.Format{SampleRate: sampleRate, NumChannels: int(channels)}
	s.buf = audio.IntBuffer{Format: &s.format, SourceBitDepth: wavBitDepth}
	s.enc = wav.NewEncoder(s.out, sampleRate, wavBitDepth, int(channels), wavPCMFormat)

	// an empty write emits the RIFF and data chunk headers so a session with
	// no audio still closes to a valid file
	if err := s.enc.Write(&s.buf); err != nil {
		s.enc = nil
		_ = s.closeFile()
		return errors.New(err).
			Component(componentExport).
			Category(errors.CategoryFileIO).
			Context("operation", "write_header").
			Context("path", s.path).
			Build()
	}

	s.log.Debug("wav sink started",
		logger.String("path", s.path),
		logger.Int("channels", int(channels)),
		logger.Int("sample_rate", sampleRate))
	return nil
}

// WriteFrame converts the interleaved float samples to 16-bit and appends them
func (s *WAVSink) WriteFrame(samples []float32) error {
	if s.enc == nil {
		return errors.New(nil).
			Component(componentExport).
			Category(errors.CategoryState).
			Context("error", "wav sink not started").
			Build()
	}
	if len(samples) == 0 {
		return nil
	}
	if len(samples)%s.format.NumChannels != 0 {
		return errors.Newf("frame of %d samples is not a whole number of %d-channel frames", len(samples), s.format.NumChannels).
			Component(componentExport).
			Category(errors.CategoryValidation).
			Build()
	}

	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]
	for i, v := range samples {
		s.buf.Data[i] = floatToInt16(v)
	}

	if err := s.enc.Write(&s.buf); err != nil {
		return errors.New(err).
			Component(componentExport).
			Category(errors.CategoryFileIO).
			Context("operation", "encode").
			Context("path", s.path).
			Build()
	}
	s.samples += uint64(len(samples))
	return nil
}

// Close finalizes the header and closes a file opened by Begin
func (s *WAVSink) Close() error {
	if s.enc == nil {
		return s.closeFile()
	}
	encErr := s.enc.Close()
	s.enc = nil
	fileErr := s.closeFile()

	if encErr != nil {
		return errors.New(encErr).
			Component(componentExport).
			Category(errors.CategoryFileIO).
			Context("operation", "finalize").
			Context("path", s.path).
			Build()
	}
	if fileErr != nil {
		return fileErr
	}

	s.log.Info("wav file written",
		logger.String("path", s.path),
		logger.Uint64("samples", s.samples),
		logger.Int("channels", s.format.NumChannels),
		logger.Int("sample_rate", s.format.SampleRate))
	return nil
}

// SamplesWritten returns the interleaved samples encoded so far
func (s *WAVSink) SamplesWritten() uint64 {
	return s.samples
}

func (s *WAVSink) closeFile() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return errors.New(err).
			Component(componentExport).
			Category(errors.CategoryFileIO).
			Context("operation", "close").
			Context("path", s.path).
			Build()
	}
	return nil
}

// floatToInt16 clamps v to [-1, 1] and scales it to the int16 range
func floatToInt16(v float32) int {
	switch {
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int(v * maxInt16)
}

func loggerOr(log logger.Logger) logger.Logger {
	if log != nil {
		return log
	}
	return logger.Global().Module("export")
}
