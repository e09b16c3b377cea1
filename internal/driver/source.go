package driver

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/qualityctl/internal/errors"
)

// DefaultFrameInterval is the simulated frame time for inputs that carry
// only a frame rate.
const DefaultFrameInterval = 16 * time.Millisecond

// Frame is one input sample.
type Frame struct {
	// FPS is the instantaneous frame rate fed to the governor.
	FPS float64
	// Duration is how far the simulated clock advances after the frame.
	Duration time.Duration
}

// Source yields frames until it returns io.EOF.
type Source interface {
	Next() (Frame, error)
}

// CSVSource reads frames from CSV with a header row. A "frame_ms" column
// gives the frame time and derives the rate; an "fps" column gives the rate
// directly. With both, fps is fed and frame_ms advances the clock.
type CSVSource struct {
	r        *csv.Reader
	interval time.Duration
	fpsCol   int
	msCol    int
	line     int
}

// NewCSVSource reads the header from r. interval is used when the input has
// no frame_ms column.
func NewCSVSource(r io.Reader, interval time.Duration) (*CSVSource, error) {
	errFactory := errors.New()

	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, errFactory.Wrap(ErrReadSample, err)
	}

	s := &CSVSource{r: cr, interval: interval, fpsCol: -1, msCol: -1, line: 1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "fps":
			s.fpsCol = i
		case "frame_ms":
			s.msCol = i
		}
	}
	if s.fpsCol < 0 && s.msCol < 0 {
		return nil, errFactory.WithData(ErrMissingColumn, strings.Join(header, ","))
	}

	return s, nil
}

func (s *CSVSource) Next() (Frame, error) {
	errFactory := errors.New()

	record, err := s.r.Read()
	if err == io.EOF {
		return Frame{}, io.EOF
	}
	s.line++
	if err != nil {
		return Frame{}, errFactory.Wrap(ErrReadSample, err)
	}

	f := Frame{Duration: s.interval}

	if s.msCol >= 0 {
		ms, err := s.field(record, s.msCol)
		if err != nil {
			return Frame{}, err
		}
		if ms <= 0 {
			return Frame{}, errFactory.WithData(ErrInvalidSample, fmt.Sprintf("line %d: frame_ms must be positive", s.line))
		}
		f.Duration = time.Duration(ms * float64(time.Millisecond))
		f.FPS = 1000 / ms
	}

	if s.fpsCol >= 0 {
		fps, err := s.field(record, s.fpsCol)
		if err != nil {
			return Frame{}, err
		}
		f.FPS = fps
	}

	return f, nil
}

func (s *CSVSource) field(record []string, col int) (float64, error) {
	if col >= len(record) {
		return 0, errors.New().WithData(ErrInvalidSample, fmt.Sprintf("line %d: missing column %d", s.line, col+1))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
	if err != nil {
		return 0, errors.New().WithData(ErrInvalidSample, fmt.Sprintf("line %d: %v", s.line, err))
	}
	return v, nil
}

// LineSource reads one frame rate per line. Blank lines and lines starting
// with '#' are skipped.
type LineSource struct {
	sc       *bufio.Scanner
	interval time.Duration
	line     int
}

func NewLineSource(r io.Reader, interval time.Duration) *LineSource {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &LineSource{sc: bufio.NewScanner(r), interval: interval}
}

func (s *LineSource) Next() (Frame, error) {
	errFactory := errors.New()

	for s.sc.Scan() {
		s.line++
		text := strings.TrimSpace(s.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fps, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Frame{}, errFactory.WithData(ErrInvalidSample, fmt.Sprintf("line %d: %v", s.line, err))
		}

		return Frame{FPS: fps, Duration: s.interval}, nil
	}

	if err := s.sc.Err(); err != nil {
		return Frame{}, errFactory.Wrap(ErrReadSample, err)
	}

	return Frame{}, io.EOF
}
