// Package audio describes PCM stream parameters and derives playback
// duration from raw byte counts. Parameters arrive as descriptive HTTP
// headers from the device and are never validated against the actual
// byte stream.
package audio
