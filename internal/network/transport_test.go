package network

import (
	"bytes"
	"net"
	"testing"
)

func TestFramingRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	sender := NewFramedConnection(a)
	receiver := NewFramedConnection(b)

	payloads := [][]byte{
		{0x01},
		[]byte("hello"),
		make([]byte, 4096),
		{}, // zero-length frame is legal
	}

	done := make(chan error, 1)
	go func() {
		for _, p := range payloads {
			if err := sender.Send(p); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i, want := range payloads {
		got, err := receiver.Recv()
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got %d bytes, want %d", i, len(got), len(want))
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestFramingRejectsOversizedFrames(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	sender := NewFramedConnection(a)
	if err := sender.Send(make([]byte, maxFrameSize+1)); err == nil {
		t.Fatal("expected oversized frame to be rejected")
	}
}

func TestFramingSplitAcrossWrites(t *testing.T) {
	// A reader must reassemble a frame delivered in several partial writes.
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	receiver := NewFramedConnection(b)
	payload := []byte("fragmented")

	go func() {
		var header [4]byte
		header[3] = byte(len(payload))
		for _, chunk := range [][]byte{header[:2], header[2:], payload[:3], payload[3:]} {
			if _, err := a.Write(chunk); err != nil {
				return
			}
		}
	}()

	got, err := receiver.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}
