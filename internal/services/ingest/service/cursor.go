package service

import (
	"context"
	"errors"
	"io"

	perr "rplace/internal/platform/errors"
	"rplace/internal/services/ingest/domain"
)

// SkipCount is the number of leading records already committed.
// A nil repo is no-store mode and always resumes from zero
func SkipCount(ctx context.Context, repo domain.StorageRepo) (int64, error) {
	if repo == nil {
		return 0, nil
	}
	n, err := repo.CountPixels(ctx)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, perr.Internalf("negative pixel count %d", n)
	}
	return n, nil
}

// SkipRecords discards exactly n records from rd without decoding them.
// An input shorter than n cannot belong to the store and fails the run
func SkipRecords(rd domain.RecordReader, n int64) error {
	for i := int64(0); i < n; i++ {
		err := rd.Skip()
		if errors.Is(err, io.EOF) {
			return perr.InvalidArgf("input shorter than stored pixels: %d records, store has %d", i, n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
