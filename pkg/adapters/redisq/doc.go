/*
Package redisq bridges streams across process boundaries through a Redis
list.

A sink pushes each written chunk to the list's tail; a source pops from the
head, so chunks flow through the queue in write order. Producer and consumer
may live in different processes: backpressure inside each process is still
governed by the local stream's queuing strategy, while the Redis list absorbs
the slack between processes.

	cfg := redisq.DefaultConfig()
	cfg.Redis = rdb
	cfg.Key = "jobs"

	sink, err := redisq.NewSink(cfg)
	if err != nil {
		log.Fatal(err)
	}
	ws, err := streams.NewWritable(sink, nil)

	// Elsewhere, typically in another process:
	source, err := redisq.NewSource(cfg)
	if err != nil {
		log.Fatal(err)
	}
	rs, err := streams.NewReadable(source, nil)

The source's blocking pop is bounded by Config.BlockTimeout and retried
while the stream stays open, so cancelling the stream takes effect within
one timeout window.
*/
package redisq
