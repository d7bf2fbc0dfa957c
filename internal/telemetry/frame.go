// Package telemetry decodes and buffers load-cell sensor frames.
//
// The sensor head notifies one 20-byte frame per measurement: a little-endian
// uint32 weight followed by four float32 values (temperature, then the X, Y
// and Z acceleration components). Decoding validates the physical ranges the
// hardware guarantees and rejects the firmware's fault sentinel.
package telemetry

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// FrameLength is the exact size of a telemetry frame in bytes.
const FrameLength = 20

// WeightSentinel is the weight value the firmware reports when the load cell
// ADC faults. Frames carrying it are rejected rather than decoded.
const WeightSentinel = 0xFFFFFFFF

// Valid measurement intervals (inclusive).
const (
	TempMin  = 0.0
	TempMax  = 85.0
	AccelMin = -8.0
	AccelMax = 8.0
)

// Sample is one validated measurement decoded from a frame.
type Sample struct {
	Weight      uint32
	Temperature float32
	AccelX      float32
	AccelY      float32
	AccelZ      float32
}

// LengthError reports a frame whose size is not FrameLength.
type LengthError struct {
	Length int
	Raw    []byte
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("invalid frame length: %d bytes, expected %d (raw %s)",
		e.Length, FrameLength, hex.EncodeToString(e.Raw))
}

// SentinelError reports a frame carrying the firmware fault code in the
// weight field.
type SentinelError struct {
	Raw []byte
}

func (e *SentinelError) Error() string {
	return fmt.Sprintf("invalid weight: device fault code 0x%08X (raw %s)",
		uint32(WeightSentinel), hex.EncodeToString(e.Raw))
}

// RangeError reports a decoded value outside its valid interval.
type RangeError struct {
	Field  string
	Values []float64
	Min    float64
	Max    float64
	Raw    []byte
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s out of range: %v (expected %g to %g, raw %s)",
		e.Field, e.Values, e.Min, e.Max, hex.EncodeToString(e.Raw))
}

// MalformedError reports a lower-level unpack failure.
type MalformedError struct {
	Raw []byte
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed frame: %v (raw %s)", e.Err, hex.EncodeToString(e.Raw))
}

func (e *MalformedError) Unwrap() error { return e.Err }

// DecodeFrame decodes and validates a raw notification payload. It is pure
// and safe to call from any goroutine. On failure the returned error is one
// of *LengthError, *SentinelError, *RangeError or *MalformedError, each
// carrying the raw bytes for diagnostics.
func DecodeFrame(data []byte) (Sample, error) {
	if len(data) != FrameLength {
		return Sample{}, &LengthError{Length: len(data), Raw: data}
	}

	var s Sample
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &s); err != nil {
		return Sample{}, &MalformedError{Raw: data, Err: err}
	}

	if s.Weight == WeightSentinel {
		return Sample{}, &SentinelError{Raw: data}
	}

	temp := float64(s.Temperature)
	if math.IsNaN(temp) || temp < TempMin || temp > TempMax {
		return Sample{}, &RangeError{
			Field:  "temperature",
			Values: []float64{temp},
			Min:    TempMin,
			Max:    TempMax,
			Raw:    data,
		}
	}

	ax, ay, az := float64(s.AccelX), float64(s.AccelY), float64(s.AccelZ)
	for _, a := range []float64{ax, ay, az} {
		if math.IsNaN(a) || a < AccelMin || a > AccelMax {
			return Sample{}, &RangeError{
				Field:  "acceleration",
				Values: []float64{ax, ay, az},
				Min:    AccelMin,
				Max:    AccelMax,
				Raw:    data,
			}
		}
	}

	return s, nil
}

// EncodeFrame packs a sample back into wire format. Used by the mock
// transport and the serial frame simulator.
func EncodeFrame(s Sample) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, FrameLength))
	binary.Write(buf, binary.LittleEndian, s)
	return buf.Bytes()
}
