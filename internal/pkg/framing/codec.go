// Package framing implements the byte-stuffed frame codec used on the wire
// between a hub and the bridge, ported from original_source/client.cpp's
// sendRequest/readyRead pair.
package framing

const (
	// Start marks the beginning of a frame. A Start byte seen mid-frame
	// resets the frame currently being assembled (the hub firmware uses
	// this to recover from a desynchronized stream).
	Start byte = 0x42
	// End marks the end of a frame.
	End byte = 0x43
	// Escape precedes an escaped literal byte. The literal is recovered by
	// clearing bit 0x20 (escapedByte & 0xDF).
	Escape byte = 0x44

	escapeMask byte = 0xDF
	escapeBit  byte = 0x20
)

// Encode wraps a ciphertext payload in Start/End sentinels, escaping any
// literal occurrence of Start, End or Escape within the payload.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, Start)

	for _, b := range payload {
		switch b {
		case Start, End, Escape:
			out = append(out, Escape, b|escapeBit)
		default:
			out = append(out, b)
		}
	}

	return append(out, End)
}

// Decoder reassembles frames from a byte stream that may deliver partial or
// multiple frames per read, mirroring Client::readyRead's buffering logic.
type Decoder struct {
	buf []byte
}

// Feed appends newly-read bytes to the decoder's internal buffer and
// returns every complete frame's unescaped payload found so far, in order.
// A Start byte encountered while scanning a frame discards everything
// buffered before it, matching the original's "case 0x42: buffer.clear()"
// resynchronization behavior.
func (d *Decoder) Feed(data []byte) [][]byte {
	d.buf = append(d.buf, data...)

	var frames [][]byte

	for {
		end := indexOf(d.buf, End)
		if end <= 0 {
			break
		}

		frame := make([]byte, 0, end)
		for i := 0; i < end; i++ {
			switch d.buf[i] {
			case Start:
				frame = frame[:0]
			case Escape:
				i++
				if i >= end {
					break
				}
				frame = append(frame, d.buf[i]&escapeMask)
			default:
				frame = append(frame, d.buf[i])
			}
		}

		d.buf = d.buf[end+1:]
		frames = append(frames, frame)
	}

	return frames
}

func indexOf(buf []byte, b byte) int {
	for i, c := range buf {
		if c == b {
			return i
		}
	}
	return -1
}
