package db

import (
	"context"
	"fmt"
	"slices"

	"gamedb/pkg/dberrors"
	"gamedb/pkg/record"
	"gamedb/pkg/types"
)

// SearchOptions narrow a listing by partition key. Zero values mean no bound.
type SearchOptions struct {
	From    record.Date // inclusive
	To      record.Date // exclusive
	Limit   int
	Reverse bool
}

// SearchCallback is called for every match. Returning false stops the scan.
type SearchCallback func(rec record.Record) bool

// Search walks node's records in id order, or reverse id order, and returns
// those whose partition key falls in [From, To).
func (s *Service) Search(ctx context.Context, node types.NodeID, opts SearchOptions) ([]record.Record, error) {
	var out []record.Record
	err := s.SearchFunc(ctx, node, opts, func(rec record.Record) bool {
		out = append(out, rec)
		return true
	})
	return out, err
}

func (s *Service) SearchFunc(ctx context.Context, node types.NodeID, opts SearchOptions, callback SearchCallback) error {
	if opts.Limit < 0 {
		return fmt.Errorf("%w: negative limit", dberrors.ErrInvalidArgument)
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && !opts.From.Before(opts.To.Time) {
		return fmt.Errorf("%w: empty range [%s, %s)", dberrors.ErrInvalidArgument, opts.From, opts.To)
	}

	rows, err := s.List(ctx, node)
	if err != nil {
		return err
	}
	if opts.Reverse {
		slices.Reverse(rows)
	}

	count := 0
	for _, rec := range rows {
		if opts.Limit > 0 && count >= opts.Limit {
			break
		}
		if !inRange(rec.PartitionKey, opts.From, opts.To) {
			continue
		}
		count++
		if !callback(rec) {
			break
		}
	}
	return nil
}

func inRange(key, from, to record.Date) bool {
	if !from.IsZero() && key.Before(from.Time) {
		return false
	}
	if !to.IsZero() && !key.Before(to.Time) {
		return false
	}
	return true
}
