package shm

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	internalshm "github.com/srediag/detection-shm/internal/shm"
)

// DefaultPerm lets any co-located process with matching access rights attach.
const DefaultPerm = 0o666

const instrumentationName = "github.com/srediag/detection-shm/pkg/shm"

// Options holds region creation parameters.
type Options struct {
	Name   string // shared memory name, e.g. "/yolo_ipc_shm"
	Size   int    // region size in bytes
	Perm   uint32 // permission bits applied on creation, DefaultPerm when zero
	Meter  metric.Meter
	Tracer trace.Tracer
	Logger *zap.Logger
}

// Region is a mapped view of a named shared memory segment.
type Region struct {
	region  *internalshm.MappedRegion
	name    string
	created bool
}

type instruments struct {
	tracer trace.Tracer
	opens  metric.Int64Counter
	logger *zap.Logger
}

func (o Options) instruments() instruments {
	meter := o.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	tracer := o.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opens, err := meter.Int64Counter("shm.region.opens",
		metric.WithDescription("Shared memory region opens by outcome."))
	if err != nil {
		opens, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("shm.region.opens")
	}
	return instruments{tracer: tracer, opens: opens, logger: logger}
}

// Open creates the named region or attaches to an existing one, sizes it to
// opts.Size and maps it read-write. The region is zeroed only when it was
// freshly created. It fails with *ResourceError or *MappingError.
func Open(ctx context.Context, opts Options) (*Region, error) {
	return open(ctx, opts, true)
}

// Attach maps an existing region without creating, resizing or zeroing it.
func Attach(ctx context.Context, opts Options) (*Region, error) {
	return open(ctx, opts, false)
}

func open(ctx context.Context, opts Options, create bool) (*Region, error) {
	ins := opts.instruments()
	ctx, span := ins.tracer.Start(ctx, "shm.Open", trace.WithAttributes(
		attribute.String("shm.name", opts.Name),
		attribute.Int("shm.size", opts.Size),
		attribute.Bool("shm.create", create),
	))
	defer span.End()

	r, err := doOpen(opts, create)
	outcome := "error"
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ins.logger.Error("shared memory open failed", zap.String("name", opts.Name), zap.Error(err))
	case r.created:
		outcome = "created"
	default:
		outcome = "attached"
	}
	ins.opens.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("shm.outcome", outcome))
	ins.logger.Info("shared memory region ready",
		zap.String("name", opts.Name),
		zap.Int("size", opts.Size),
		zap.String("outcome", outcome))
	return r, nil
}

func doOpen(opts Options, create bool) (*Region, error) {
	perm := opts.Perm
	if perm == 0 {
		perm = DefaultPerm
	}
	op := "attach"
	if create {
		op = "open_or_create"
	}
	seg, err := internalshm.OpenSegment(internalshm.OpenOptions{
		Name:   opts.Name,
		Size:   opts.Size,
		Perm:   perm,
		Create: create,
	})
	if err != nil {
		return nil, &ResourceError{Name: opts.Name, Op: op, Err: err}
	}
	mapped, err := seg.Map()
	if err != nil {
		return nil, &MappingError{Name: opts.Name, Err: err}
	}
	if seg.Created {
		internalshm.Zero(mapped.Addr)
	}
	return &Region{region: mapped, name: opts.Name, created: seg.Created}, nil
}

// Bytes returns the mapped memory. Writes are visible to every other mapper.
func (r *Region) Bytes() []byte {
	if r == nil || r.region == nil {
		return nil
	}
	return r.region.Addr
}

// Name returns the segment name the region was opened with.
func (r *Region) Name() string { return r.name }

// Size returns the mapped size in bytes.
func (r *Region) Size() int { return len(r.Bytes()) }

// Created reports whether this Open created the segment.
func (r *Region) Created() bool { return r.created }

// Stale reports whether the name no longer refers to the mapped segment,
// because it was removed or removed and created again.
func (r *Region) Stale() bool {
	if r == nil || r.region == nil {
		return true
	}
	ino, err := internalshm.Inode(r.name)
	return err != nil || ino != r.region.Ino
}

// Close unmaps the process-local view. The named segment is left in place.
func (r *Region) Close() error {
	if r == nil || r.region == nil {
		return nil
	}
	return internalshm.UnmapRegion(r.region)
}

// Remove unlinks the named segment. Processes that still map it keep their
// view; later opens create a fresh, zeroed segment.
func Remove(name string) error {
	if err := internalshm.Unlink(name); err != nil {
		if errors.Is(err, ErrInvalidName) {
			return err
		}
		return &ResourceError{Name: name, Op: "remove", Err: err}
	}
	return nil
}
