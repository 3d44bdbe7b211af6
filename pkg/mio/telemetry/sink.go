package telemetry

import (
	"bufio"
	"fmt"
	"io"
)

// Sink is the store/load seam the two telemetry backends implement,
// grounded on the source's mio_telemetry_rec_ops vtable (mtro_store /
// mtro_load paired with mtro_encode / mtro_decode). Store persists one
// record; Load reads the next one off the backend, returning io.EOF once
// the stream is exhausted.
type Sink interface {
	Store(r Record) error
	Load() (Record, error)
}

// BinarySink stores and loads records through the fixed-width binary codec
// against a byte stream. The source pairs this role with an ADDB backend;
// here it is a plain stream so any io.Writer/io.Reader (a file, a pipe, an
// in-memory buffer) can back it.
type BinarySink struct {
	w io.Writer
	r io.Reader
}

var _ Sink = (*BinarySink)(nil)

// NewBinarySink wraps w/r as a binary-codec Sink. Either may be nil if the
// sink is only ever used in one direction.
func NewBinarySink(w io.Writer, r io.Reader) *BinarySink {
	return &BinarySink{w: w, r: r}
}

func (s *BinarySink) Store(r Record) error {
	buf, err := EncodeBinary(r)
	if err != nil {
		return err
	}
	_, err = s.w.Write(buf)
	return err
}

func (s *BinarySink) Load() (Record, error) {
	return decodeBinaryStream(s.r)
}

// LogSink stores and loads records through the text log codec, matching
// mio_telem_log_rec_ops: Store appends one line, Load reads the next.
type LogSink struct {
	w io.Writer
	s *bufio.Scanner
}

var _ Sink = (*LogSink)(nil)

// NewLogSink wraps w/r as a log-codec Sink. Either may be nil if the sink
// is only ever used in one direction.
func NewLogSink(w io.Writer, r io.Reader) *LogSink {
	ls := &LogSink{w: w}
	if r != nil {
		ls.s = bufio.NewScanner(r)
	}
	return ls
}

func (s *LogSink) Store(r Record) error {
	_, err := fmt.Fprintln(s.w, EncodeLog(r))
	return err
}

func (s *LogSink) Load() (Record, error) {
	if !s.s.Scan() {
		if err := s.s.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, io.EOF
	}
	return ParseLog(s.s.Text())
}
