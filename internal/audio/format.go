package audio

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format holds the PCM stream parameters declared by the device.
// The raw header strings are kept alongside the parsed values because the
// API echoes them back verbatim.
type Format struct {
	SampleRate    int
	BitsPerSample int
	Channels      int

	RawSampleRate    string
	RawBitsPerSample string
	RawChannels      string
}

// Defaults contains the fallback parameters used when a header is absent.
type Defaults struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// ParseFormat builds a Format from the device's header values. Empty strings
// fall back to the defaults; a present but malformed value is an error so
// duration math never divides by zero.
func ParseFormat(sampleRate, bits, channels string, defaults Defaults) (Format, error) {
	f := Format{
		RawSampleRate:    sampleRate,
		RawBitsPerSample: bits,
		RawChannels:      channels,
	}

	var err error

	f.SampleRate, err = parseParam("sample rate", sampleRate, defaults.SampleRate)
	if err != nil {
		return Format{}, err
	}

	f.BitsPerSample, err = parseParam("bits per sample", bits, defaults.BitsPerSample)
	if err != nil {
		return Format{}, err
	}

	f.Channels, err = parseParam("channels", channels, defaults.Channels)
	if err != nil {
		return Format{}, err
	}

	// A bit depth below 8 floors the data rate to zero; reject it up front
	// instead of dividing by zero later.
	if f.BytesPerSecond() == 0 {
		return Format{}, fmt.Errorf("invalid format %s: zero data rate", f)
	}

	if f.RawSampleRate == "" {
		f.RawSampleRate = strconv.Itoa(f.SampleRate)
	}
	if f.RawBitsPerSample == "" {
		f.RawBitsPerSample = strconv.Itoa(f.BitsPerSample)
	}
	if f.RawChannels == "" {
		f.RawChannels = strconv.Itoa(f.Channels)
	}

	return f, nil
}

func parseParam(name, value string, fallback int) (int, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}

	if n <= 0 {
		return 0, fmt.Errorf("invalid %s %d: must be positive", name, n)
	}

	return n, nil
}

// BytesPerSecond returns the PCM data rate for this format. Bits are
// floored to whole bytes per sample first.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * (f.BitsPerSample / 8)
}

// Duration computes the playback duration in seconds for a payload of the
// given size, rounded to 2 decimal places.
func (f Format) Duration(sizeBytes int64) float64 {
	seconds := float64(sizeBytes) / float64(f.BytesPerSecond())
	return math.Round(seconds*100) / 100
}

// String returns a compact description like "16000Hz/16bit/1ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitsPerSample, f.Channels)
}
