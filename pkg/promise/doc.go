/*
Package promise provides a minimal single-settlement deferred value.

A Promise starts pending and is settled exactly once, with either a value or
an error. Waiters block on Await with a context; settling after the first
settlement is a no-op. The type is the uniform asynchronous return channel
for the streams engine: reads, writes, closes, and aborts all settle promises
rather than blocking native threads inside the engine.

Basic usage:

	p := promise.New[int]()

	go func() {
		p.Resolve(42)
	}()

	v, err := p.Await(ctx)

Chaining:

	doubled := promise.Then(p, func(v int) (int, error) {
		return v * 2, nil
	})
*/
package promise
