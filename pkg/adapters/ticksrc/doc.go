// Package ticksrc adapts cron schedules into readable streams. Each chunk is
// one scheduled firing, delivered as the firing's scheduled time, so periodic
// work can be consumed with the same backpressure-aware reading loop as any
// other stream.
package ticksrc
