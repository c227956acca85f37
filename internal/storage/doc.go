// Package storage persists accepted audio payloads as timestamped .pcm files
// in a flat recordings directory and lists them newest first. Files are
// written atomically so a failed request never leaves a partial recording.
package storage
