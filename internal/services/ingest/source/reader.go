package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	perr "rplace/internal/platform/errors"
	"rplace/internal/services/ingest/domain"
)

// Header field names of a canvas export
const (
	FieldTimestamp  = "timestamp"
	FieldUserID     = "user_id"
	FieldColor      = "pixel_color"
	FieldCoordinate = "coordinate"
)

var required = []string{FieldTimestamp, FieldUserID, FieldColor, FieldCoordinate}

// Reader yields canvas records in input order. Ordinals count data rows from zero
type Reader struct {
	cr   *csv.Reader
	next int64

	iTS, iUser, iColor, iCoord int
}

// NewReader reads and validates the header. The four named fields may appear in
// any order; extra columns are ignored
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, perr.HeaderMissingf("empty input, want header %s", strings.Join(required, ","))
	}
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeInput, "read header")
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, perr.WithField(perr.HeaderMissingf("header %q lacks %s", strings.Join(header, ","), name), name)
		}
	}

	return &Reader{
		cr:     cr,
		iTS:    idx[FieldTimestamp],
		iUser:  idx[FieldUserID],
		iColor: idx[FieldColor],
		iCoord: idx[FieldCoordinate],
	}, nil
}

// Next returns the next record, or io.EOF at the end of input
func (r *Reader) Next() (domain.Record, error) {
	fields, err := r.read()
	if err != nil {
		return domain.Record{}, err
	}
	rec := domain.Record{
		Ordinal:    r.next,
		Timestamp:  fields[r.iTS],
		UserHash:   fields[r.iUser],
		Color:      fields[r.iColor],
		Coordinate: fields[r.iCoord],
	}
	r.next++
	return rec, nil
}

// Skip consumes one record without building it
func (r *Reader) Skip() error {
	if _, err := r.read(); err != nil {
		return err
	}
	r.next++
	return nil
}

// Ordinal is the ordinal the next record will have
func (r *Reader) Ordinal() int64 { return r.next }

func (r *Reader) read() ([]string, error) {
	fields, err := r.cr.Read()
	if err == nil {
		return fields, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	msg := "csv framing"
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		msg = fmt.Sprintf("csv framing at line %d", pe.Line)
	}
	return nil, perr.WithRecord(perr.Wrap(err, perr.ErrorCodeInput, msg), r.next, "")
}

// Factory adapts NewReader to domain.ReaderFactory
type Factory struct{}

// New implements domain.ReaderFactory
func (Factory) New(r io.Reader) (domain.RecordReader, error) { return NewReader(r) }

var _ domain.ReaderFactory = Factory{}
