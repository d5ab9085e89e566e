// SPDX-License-Identifier: MIT

// Package note maps frequencies to equal-tempered note names and cents
// deviations. Everything here is stateless and safe for concurrent use.
package note

import (
	"math"
	"strconv"
)

const (
	// A4 is the concert reference pitch in Hz.
	A4 = 440.0
	// A4MIDI is the MIDI number of the reference pitch.
	A4MIDI = 69

	minMIDI = 0
	maxMIDI = 127
)

// names is indexed by midi % 12.
var names = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Info describes the nearest tempered note to a measured frequency.
type Info struct {
	Name               string  `json:"name"`
	Octave             int     `json:"octave"`
	Cents              float64 `json:"cents"`
	ReferenceFrequency float64 `json:"reference_hz"`
	// MIDI is -1 when the input frequency could not be mapped.
	MIDI int `json:"midi"`
}

// Unvoiced is the sentinel returned for non-positive or non-finite input.
var Unvoiced = Info{MIDI: -1}

// Voiced reports whether the info carries a real note.
func (n Info) Voiced() bool {
	return n.MIDI >= 0
}

// String returns the scientific pitch name, e.g. "A4" or "C#-1".
func (n Info) String() string {
	if !n.Voiced() {
		return "-"
	}
	return n.Name + strconv.Itoa(n.Octave)
}

// Mapper converts frequencies against a configurable reference pitch.
// The zero value uses A4 = 440 Hz.
type Mapper struct {
	A4 float64
}

func (m Mapper) reference() float64 {
	if m.A4 > 0 && !math.IsInf(m.A4, 0) {
		return m.A4
	}
	return A4
}

// FreqToNote maps f to the nearest note against the reference pitch 440 Hz.
func FreqToNote(f float64) Info {
	return Mapper{}.FreqToNote(f)
}

// FreqToNote maps f to the nearest MIDI note, clamped to [0, 127], and
// reports the deviation from that note's tempered frequency in cents.
func (m Mapper) FreqToNote(f float64) Info {
	if !(f > 0) || math.IsInf(f, 0) {
		return Unvoiced
	}

	ref := m.reference()
	exact := A4MIDI + 12*math.Log2(f/ref)
	if math.IsNaN(exact) || math.IsInf(exact, 0) {
		return Unvoiced
	}

	// Round half away from zero, then clamp.
	midi := int(math.Round(exact))
	midi = min(max(midi, minMIDI), maxMIDI)

	refFreq := m.MIDIToFrequency(midi)
	return Info{
		Name:               names[midi%12],
		Octave:             midi/12 - 1,
		Cents:              1200 * math.Log2(f/refFreq),
		ReferenceFrequency: refFreq,
		MIDI:               midi,
	}
}

// MIDIToFrequency returns the tempered frequency of a MIDI note number.
func (m Mapper) MIDIToFrequency(midi int) float64 {
	return m.reference() * math.Pow(2, float64(midi-A4MIDI)/12)
}

// MIDIToFrequency returns the tempered frequency of midi against A4 = 440 Hz.
func MIDIToFrequency(midi int) float64 {
	return Mapper{}.MIDIToFrequency(midi)
}
