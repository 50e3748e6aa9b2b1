package protocol

import (
	"bytes"
	"io"
	"testing"
)

func TestReadFrameRoundTripsOverStream(t *testing.T) {
	frames := []Frame{
		Connect(1, "example.com", 443),
		Data(1, []byte("payload")),
		Close(1),
		ErrorReply(2, 502, "bad gateway"),
		Ping(),
		Pong(),
		DNSQuery(3, []byte{0xAA}),
		DNSResponse(3, []byte{0xBB, 0xCC}),
	}

	var buf bytes.Buffer
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	for i, want := range frames {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("frame %d: ReadFrame: %v", i, err)
		}
		if got.Command != want.Command || got.StreamId != want.StreamId {
			t.Fatalf("frame %d = %+v, want %+v", i, got, want)
		}
	}

	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Fatalf("trailing ReadFrame err = %v, want io.EOF", err)
	}
}

func TestReadFrameMultipleSmallReads(t *testing.T) {
	f := Data(7, []byte("chunked-payload"))
	encoded, err := Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	r := &oneByteAtATimeReader{data: encoded}
	got, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.StreamId != 7 || string(got.Payload) != "chunked-payload" {
		t.Fatalf("got = %+v", got)
	}
}

func TestReadFrameTruncatedStream(t *testing.T) {
	encoded, _ := Encode(Connect(1, "example.com", 80))
	short := bytes.NewReader(encoded[:len(encoded)-3])
	if _, err := ReadFrame(short); err == nil {
		t.Fatal("expected error on truncated stream, got nil")
	}
}

// oneByteAtATimeReader forces ReadFrame's io.ReadFull calls to loop over
// multiple short reads, exercising the streaming decode path.
type oneByteAtATimeReader struct {
	data []byte
	pos  int
}

func (r *oneByteAtATimeReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
