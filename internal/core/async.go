package core

import "context"

// Future is the pending result of one asynchronous round-trip.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn in a new goroutine and returns its future result.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx is done.
// Giving up on ctx does not cancel the round-trip; the context passed to the
// operation does.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncSession is the non-blocking view of a Session. Every method starts the
// single round-trip of the operation and returns immediately.
type AsyncSession struct {
	s *Session
}

// Session returns the blocking session behind a.
func (a *AsyncSession) Session() *Session {
	return a.s
}

// InsertOne is the non-blocking Session.InsertOne.
func (a *AsyncSession) InsertOne(ctx context.Context, q *Query) *Future[string] {
	return Go(ctx, func(ctx context.Context) (string, error) { return a.s.InsertOne(ctx, q) })
}

// InsertMany is the non-blocking Session.InsertMany.
func (a *AsyncSession) InsertMany(ctx context.Context, q *Query) *Future[[]string] {
	return Go(ctx, func(ctx context.Context) ([]string, error) { return a.s.InsertMany(ctx, q) })
}

// FindOne is the non-blocking Session.FindOne.
func (a *AsyncSession) FindOne(ctx context.Context, q *Query) *Future[M] {
	return Go(ctx, func(ctx context.Context) (M, error) { return a.s.FindOne(ctx, q) })
}

// FindMany is the non-blocking Session.FindMany.
func (a *AsyncSession) FindMany(ctx context.Context, q *Query) *Future[[]M] {
	return Go(ctx, func(ctx context.Context) ([]M, error) { return a.s.FindMany(ctx, q) })
}

// FindAll is the non-blocking Session.FindAll.
func (a *AsyncSession) FindAll(ctx context.Context, q *Query) *Future[[]M] {
	return Go(ctx, func(ctx context.Context) ([]M, error) { return a.s.FindAll(ctx, q) })
}

// FindCount is the non-blocking Session.FindCount.
func (a *AsyncSession) FindCount(ctx context.Context, q *Query) *Future[int64] {
	return Go(ctx, func(ctx context.Context) (int64, error) { return a.s.FindCount(ctx, q) })
}

// FindPaginated is the non-blocking Session.FindPaginated.
func (a *AsyncSession) FindPaginated(ctx context.Context, q *Query) *Future[*Pagination] {
	return Go(ctx, func(ctx context.Context) (*Pagination, error) { return a.s.FindPaginated(ctx, q) })
}

// UpdateOne is the non-blocking Session.UpdateOne.
func (a *AsyncSession) UpdateOne(ctx context.Context, q *Query) *Future[*UpdateResult] {
	return Go(ctx, func(ctx context.Context) (*UpdateResult, error) { return a.s.UpdateOne(ctx, q) })
}

// UpdateMany is the non-blocking Session.UpdateMany.
func (a *AsyncSession) UpdateMany(ctx context.Context, q *Query) *Future[*UpdateResult] {
	return Go(ctx, func(ctx context.Context) (*UpdateResult, error) { return a.s.UpdateMany(ctx, q) })
}

// DeleteOne is the non-blocking Session.DeleteOne.
func (a *AsyncSession) DeleteOne(ctx context.Context, q *Query) *Future[int64] {
	return Go(ctx, func(ctx context.Context) (int64, error) { return a.s.DeleteOne(ctx, q) })
}

// DeleteMany is the non-blocking Session.DeleteMany.
func (a *AsyncSession) DeleteMany(ctx context.Context, q *Query) *Future[int64] {
	return Go(ctx, func(ctx context.Context) (int64, error) { return a.s.DeleteMany(ctx, q) })
}

// Aggregate is the non-blocking Session.Aggregate.
func (a *AsyncSession) Aggregate(ctx context.Context, q *Query) *Future[[]M] {
	return Go(ctx, func(ctx context.Context) ([]M, error) { return a.s.Aggregate(ctx, q) })
}

// Prev is the non-blocking Pagination.Prev.
func (a *AsyncSession) Prev(ctx context.Context, p *Pagination) *Future[*Pagination] {
	return Go(ctx, p.Prev)
}

// Next is the non-blocking Pagination.Next.
func (a *AsyncSession) Next(ctx context.Context, p *Pagination) *Future[*Pagination] {
	return Go(ctx, p.Next)
}
