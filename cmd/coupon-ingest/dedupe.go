package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	// maxFiles bounds the per-code file bitmask.
	maxFiles = bits.UintSize
)

// scanner finds codes that appear in more than one campaign file. Each file
// gets a bloom filter in pass 1; pass 2 re-reads every file and records codes
// that hit another file's filter. A code is confirmed once at least two files
// report it, which rules out single-sided false positives.
type scanner struct {
	lg       *zap.Logger
	capacity uint
}

// crossFileDuplicates returns the set of codes present in two or more files.
func (s *scanner) crossFileDuplicates(ctx context.Context, files []string) (map[string]struct{}, error) {
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files per run, got %d", maxFiles, len(files))
	}
	if len(files) < 2 {
		return map[string]struct{}{}, nil
	}

	s.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := s.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	s.lg.Info("Pass 2: finding shared codes")
	masks := make([]map[string]uint, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			m, err := s.candidates(gctx, i, path, filters)
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			masks[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	dups := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			dups[code] = struct{}{}
		}
	}
	return dups, nil
}

func (s *scanner) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(s.capacity, bloomFPR)
			var count uint64
			err := streamGzFile(gctx, path, func(line string) {
				if skipLine(line) {
					return
				}
				filter.AddString(lineCode(line))
				count++
				if count%progressEvery == 0 {
					s.lg.Info("Pass 1 progress", zap.String("file", path), zap.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			s.lg.Info("Pass 1 complete", zap.String("file", path), zap.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// candidates returns codes of file idx that test positive in another file's
// filter, each marked with the bit of idx.
func (s *scanner) candidates(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) (map[string]uint, error) {
	out := make(map[string]uint)
	bit := uint(1) << uint(idx)
	err := streamGzFile(ctx, path, func(line string) {
		if skipLine(line) {
			return
		}
		code := lineCode(line)
		for j, f := range filters {
			if j != idx && f.TestString(code) {
				out[code] |= bit
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	s.lg.Info("Pass 2 complete", zap.String("file", path), zap.Int("candidates", len(out)))
	return out, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
