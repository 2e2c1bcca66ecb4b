package policy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// PooledInstance is what the pool hands out: one exclusive sandbox execution
// context per evaluation.
type PooledInstance interface {
	Call(ctx context.Context, export string, input []byte) ([]byte, error)
	Close(ctx context.Context) error
}

// InstanceFactory creates fresh instances for the pool.
type InstanceFactory interface {
	Instantiate(ctx context.Context) (PooledInstance, error)
}

// PoolConfig holds configuration for an instance pool.
type PoolConfig struct {
	// MinIdle instances are created up front so first evaluations do not pay
	// instantiation cost.
	MinIdle int

	// MaxInstances is the creation ceiling. Callers wanting an instance
	// beyond it wait for a check-in rather than instantiating unboundedly.
	MaxInstances int

	Factory InstanceFactory
}

// InstancePool is a bounded pool of idle instances for one compiled module.
// Check-out/check-in is safe under arbitrary concurrent access; an instance
// is never handed to two evaluations at once. Instances whose call failed are
// dropped, never re-pooled, since sandbox state after an abnormal exit is not
// trusted.
type InstancePool struct {
	minIdle      int
	maxInstances int
	factory      InstanceFactory

	idle      chan PooledInstance
	count     atomic.Int32 // instances alive (idle + checked out)
	active    atomic.Int32 // instances checked out
	discarded atomic.Uint64

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewInstancePool creates a pool and pre-warms MinIdle instances.
func NewInstancePool(ctx context.Context, config PoolConfig) (*InstancePool, error) {
	if config.MinIdle < 0 {
		return nil, errors.New("min idle cannot be negative")
	}
	if config.MaxInstances < 1 {
		return nil, errors.New("max instances must be at least 1")
	}
	if config.MinIdle > config.MaxInstances {
		return nil, errors.New("min idle cannot be greater than max instances")
	}
	if config.Factory == nil {
		return nil, errors.New("factory cannot be nil")
	}

	pool := &InstancePool{
		minIdle:      config.MinIdle,
		maxInstances: config.MaxInstances,
		factory:      config.Factory,
		idle:         make(chan PooledInstance, config.MaxInstances),
		shutdown:     make(chan struct{}),
	}

	for i := 0; i < config.MinIdle; i++ {
		instance, err := config.Factory.Instantiate(ctx)
		if err != nil {
			_ = pool.Shutdown(ctx)
			return nil, err
		}
		pool.idle <- instance
		pool.count.Add(1)
	}

	return pool, nil
}

// Evaluate checks out an instance, runs one call on it, and checks it back in
// on clean success. Blocks until an instance is available or ctx is done.
func (p *InstancePool) Evaluate(ctx context.Context, export string, input []byte) ([]byte, error) {
	select {
	case <-p.shutdown:
		return nil, ErrPoolShutdown
	default:
	}

	instance, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	output, err := instance.Call(ctx, export, input)
	if err != nil {
		p.discard(instance)
		return nil, err
	}

	p.release(instance)
	return output, nil
}

// Active returns the number of instances currently checked out.
func (p *InstancePool) Active() uint {
	return uint(p.active.Load())
}

// Discarded returns how many instances were dropped after a failed call.
func (p *InstancePool) Discarded() uint64 {
	return p.discarded.Load()
}

// Shutdown closes all idle instances and fails subsequent evaluations.
// Idempotent.
func (p *InstancePool) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
		shutdownErr = p.drainIdle(ctx)
	})
	return shutdownErr
}

func (p *InstancePool) acquire(ctx context.Context) (PooledInstance, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolShutdown
	case instance := <-p.idle:
		p.active.Add(1)
		return instance, nil
	default:
	}

	// No idle instance. Claim a creation slot if the ceiling allows.
	for {
		n := p.count.Load()
		if n >= int32(p.maxInstances) {
			break
		}
		if !p.count.CompareAndSwap(n, n+1) {
			continue
		}
		instance, err := p.factory.Instantiate(ctx)
		if err != nil {
			p.count.Add(-1)
			return nil, err
		}
		p.active.Add(1)
		return instance, nil
	}

	// At the ceiling: wait for a check-in.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolShutdown
	case instance := <-p.idle:
		p.active.Add(1)
		return instance, nil
	}
}

func (p *InstancePool) release(instance PooledInstance) {
	p.active.Add(-1)

	select {
	case <-p.shutdown:
	default:
		select {
		case p.idle <- instance:
			// Shutdown may have drained the idle buffer between the check
			// above and the send; drain again so the check-in cannot outlive
			// the pool unclosed.
			select {
			case <-p.shutdown:
				_ = p.drainIdle(context.Background())
			default:
			}
			return
		default:
		}
	}

	// Shutting down, or the idle buffer is full.
	_ = instance.Close(context.Background())
	p.count.Add(-1)
}

func (p *InstancePool) discard(instance PooledInstance) {
	p.active.Add(-1)
	p.count.Add(-1)
	p.discarded.Add(1)
	_ = instance.Close(context.Background())
}

func (p *InstancePool) drainIdle(ctx context.Context) error {
	var lastErr error
	for {
		select {
		case instance := <-p.idle:
			p.count.Add(-1)
			if err := instance.Close(ctx); err != nil {
				lastErr = err
			}
		default:
			return lastErr
		}
	}
}
