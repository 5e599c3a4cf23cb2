// Package pipeline shards a bitext file by byte ranges, runs one worker per
// shard (decode → batch → encode → extract → format), and reassembles the
// per-worker output streams in shard order. It never imports app or cli;
// keep it wiring-only on top of walign-core.
package pipeline
