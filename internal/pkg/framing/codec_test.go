package framing

import (
	"bytes"
	"testing"

	"github.com/matryer/is"
)

func TestEncodeEscapesSentinels(t *testing.T) {
	is := is.New(t)

	payload := []byte{0x01, Start, 0x02, End, 0x03, Escape, 0x04}
	encoded := Encode(payload)

	is.Equal(encoded[0], Start)
	is.Equal(encoded[len(encoded)-1], End)
	is.Equal(encoded, []byte{
		Start,
		0x01, Escape, Start | 0x20, 0x02, Escape, End | 0x20, 0x03, Escape, Escape | 0x20, 0x04,
		End,
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	is := is.New(t)

	payloads := [][]byte{
		{0x00, 0x01, 0x02},
		{Start, End, Escape},
		bytes.Repeat([]byte{0xFF}, 32),
		[]byte(`{"action":"publish","topic":"status/1"}`),
	}

	for _, payload := range payloads {
		encoded := Encode(payload)

		d := &Decoder{}
		frames := d.Feed(encoded)

		is.Equal(len(frames), 1)
		is.Equal(frames[0], payload)
	}
}

func TestDecoderHandlesSplitReads(t *testing.T) {
	is := is.New(t)

	payload := []byte("hello from the hub")
	encoded := Encode(payload)

	d := &Decoder{}

	mid := len(encoded) / 2
	frames := d.Feed(encoded[:mid])
	is.Equal(len(frames), 0)

	frames = d.Feed(encoded[mid:])
	is.Equal(len(frames), 1)
	is.Equal(frames[0], payload)
}

func TestDecoderHandlesMultipleFramesInOneRead(t *testing.T) {
	is := is.New(t)

	p1 := []byte("first")
	p2 := []byte("second")

	var stream []byte
	stream = append(stream, Encode(p1)...)
	stream = append(stream, Encode(p2)...)

	d := &Decoder{}
	frames := d.Feed(stream)

	is.Equal(len(frames), 2)
	is.Equal(frames[0], p1)
	is.Equal(frames[1], p2)
}

func TestDecoderResynchronizesOnStrayStart(t *testing.T) {
	is := is.New(t)

	garbage := []byte{0x01, 0x02}
	payload := []byte("real frame")

	var stream []byte
	stream = append(stream, Start)
	stream = append(stream, garbage...)
	stream = append(stream, Encode(payload)...)

	d := &Decoder{}
	frames := d.Feed(stream)

	is.Equal(len(frames), 1)
	is.Equal(frames[0], payload)
}

func TestEncodedPayloadNeverContainsBareSentinels(t *testing.T) {
	is := is.New(t)

	payload := []byte{Start, Start, End, Escape, End, 0x10}
	encoded := Encode(payload)
	inner := encoded[1 : len(encoded)-1]

	for i := 0; i < len(inner); i++ {
		if inner[i] == Escape {
			i++
			continue
		}
		is.True(inner[i] != Start)
		is.True(inner[i] != End)
	}
}
