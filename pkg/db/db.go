package db

import (
	"context"
	"fmt"
	"log/slog"

	"gamedb/pkg/backend"
	"gamedb/pkg/cluster"
	"gamedb/pkg/dberrors"
	"gamedb/pkg/record"
	"gamedb/pkg/replication"
	"gamedb/pkg/types"
)

// Propagator accepts a change that committed locally. *replication.Async
// implements it.
type Propagator interface {
	Submit(c replication.Change) error
}

type healthChecker interface {
	Online(node types.NodeID) bool
}

// Options define optional write-time checks.
type Options struct {
	// CheckMirrorUniqueness rejects a create on a shard when the mirror
	// already holds the id, which catches ids taken on the other shard.
	CheckMirrorUniqueness bool
}

// Config wires a Service.
type Config struct {
	Topology    cluster.Topology
	Partitioner *cluster.Partitioner
	Registry    healthChecker
	Backends    map[types.NodeID]backend.Backend
	Propagator  Propagator
	Options     Options
	Logger      *slog.Logger
}

// Service is the per-node record API. Every write commits on the addressed
// node first and then hands the change to the propagator; propagation
// problems never fail the write.
type Service struct {
	topo     cluster.Topology
	router   *cluster.Partitioner
	health   healthChecker
	backends map[types.NodeID]backend.Backend
	prop     Propagator
	opts     Options
	log      *slog.Logger
}

func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		topo:     cfg.Topology,
		router:   cfg.Partitioner,
		health:   cfg.Registry,
		backends: cfg.Backends,
		prop:     cfg.Propagator,
		opts:     cfg.Options,
		log:      cfg.Logger,
	}
}

func (s *Service) backend(node types.NodeID) (backend.Backend, error) {
	b, ok := s.backends[node]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", node, dberrors.ErrUnknownNode)
	}
	return b, nil
}

func (s *Service) Create(ctx context.Context, node types.NodeID, rec record.Record) (record.Record, error) {
	b, err := s.backend(node)
	if err != nil {
		return record.Record{}, err
	}
	if err := rec.Validate(); err != nil {
		return record.Record{}, fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err)
	}
	if !s.router.Accepts(node, rec.PartitionKey) {
		return record.Record{}, fmt.Errorf("%w: %s does not accept partition key %s (threshold year %d)",
			dberrors.ErrPartitionRule, node, rec.PartitionKey, s.router.Threshold())
	}

	if _, found, err := backend.Lookup(ctx, b, rec.ID); err != nil {
		return record.Record{}, err
	} else if found {
		return record.Record{}, fmt.Errorf("%w: %s on %s", dberrors.ErrDuplicateID, rec.ID, node)
	}
	if err := s.checkMirror(ctx, node, rec.ID); err != nil {
		return record.Record{}, err
	}

	stmt, err := backend.Insert(rec)
	if err != nil {
		return record.Record{}, fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err)
	}
	if _, err := b.Execute(ctx, stmt); err != nil {
		return record.Record{}, err
	}

	s.submit(replication.Change{Kind: types.OpCreate, Origin: node, Record: rec})
	return rec, nil
}

// checkMirror looks the id up on the mirror for shard-origin creates. A
// mirror marked offline is not consulted.
func (s *Service) checkMirror(ctx context.Context, node types.NodeID, id string) error {
	if !s.opts.CheckMirrorUniqueness || s.topo.IsMirror(node) {
		return nil
	}
	mirror := s.topo.Mirror.ID
	if s.health != nil && !s.health.Online(mirror) {
		s.log.Debug("mirror offline, skipping uniqueness check", "node", node, "id", id)
		return nil
	}

	b, err := s.backend(mirror)
	if err != nil {
		return err
	}
	_, found, err := backend.Lookup(ctx, b, id)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: %s already exists on %s", dberrors.ErrDuplicateID, id, mirror)
	}
	return nil
}

// Update replaces the stored record. The new key may belong to another
// shard; replication then moves the row.
func (s *Service) Update(ctx context.Context, node types.NodeID, rec record.Record) (record.Record, error) {
	b, err := s.backend(node)
	if err != nil {
		return record.Record{}, err
	}
	if err := rec.Validate(); err != nil {
		return record.Record{}, fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err)
	}

	prev, err := s.get(ctx, b, node, rec.ID)
	if err != nil {
		return record.Record{}, err
	}

	stmt, err := backend.Update(rec)
	if err != nil {
		return record.Record{}, fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err)
	}
	if _, err := b.Execute(ctx, stmt); err != nil {
		return record.Record{}, err
	}

	s.submit(replication.Change{Kind: types.OpUpdate, Origin: node, Record: rec, Previous: &prev})
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, node types.NodeID, id string) error {
	b, err := s.backend(node)
	if err != nil {
		return err
	}

	stored, err := s.get(ctx, b, node, id)
	if err != nil {
		return err
	}
	if _, err := b.Execute(ctx, backend.Delete(id)); err != nil {
		return err
	}

	s.submit(replication.Change{Kind: types.OpDelete, Origin: node, Record: stored})
	return nil
}

func (s *Service) Get(ctx context.Context, node types.NodeID, id string) (record.Record, error) {
	b, err := s.backend(node)
	if err != nil {
		return record.Record{}, err
	}
	return s.get(ctx, b, node, id)
}

func (s *Service) get(ctx context.Context, b backend.Backend, node types.NodeID, id string) (record.Record, error) {
	if id == "" {
		return record.Record{}, fmt.Errorf("%w: record id is empty", dberrors.ErrInvalidArgument)
	}
	rec, found, err := backend.Lookup(ctx, b, id)
	if err != nil {
		return record.Record{}, err
	}
	if !found {
		return record.Record{}, fmt.Errorf("%w: %s on %s", dberrors.ErrNotFound, id, node)
	}
	return rec, nil
}

// List returns every record on node ordered by id.
func (s *Service) List(ctx context.Context, node types.NodeID) ([]record.Record, error) {
	b, err := s.backend(node)
	if err != nil {
		return nil, err
	}
	res, err := b.Execute(ctx, backend.List())
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

func (s *Service) submit(c replication.Change) {
	if s.prop == nil {
		return
	}
	if err := s.prop.Submit(c); err != nil {
		s.log.Error("failed to submit change for propagation",
			"origin", c.Origin, "op", c.Kind, "id", c.Record.ID, "error", err)
	}
}
