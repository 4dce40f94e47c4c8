package x11

import (
	"testing"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/google/go-cmp/cmp"
)

func TestDecodeClientMessage(t *testing.T) {
	var r Record
	r[0] = xproto.ClientMessage | 0x80
	r[1] = 32
	xgb.Put16(r[2:], 7)
	xgb.Put32(r[4:], 0x00400001)
	xgb.Put32(r[8:], 70)
	xgb.Put32(r[12:], 71)
	xgb.Put32(r[16:], 1234)

	ev, ok := DecodeEvent(&r).(ClientMessageEvent)
	if !ok {
		t.Fatalf("expected ClientMessageEvent, got %T", DecodeEvent(&r))
	}
	if ev.Code() != xproto.ClientMessage {
		t.Fatalf("expected code %d, got %d", xproto.ClientMessage, ev.Code())
	}
	if !ev.Sent {
		t.Fatalf("expected sent bit to be reported")
	}
	if ev.Format != 32 || ev.Sequence != 7 || ev.Window != 0x00400001 || ev.Type != 70 {
		t.Fatalf("unexpected header fields: %+v", ev)
	}
	if diff := cmp.Diff([5]uint32{71, 1234, 0, 0, 0}, ev.Data32()); diff != "" {
		t.Fatalf("data32 mismatch (-want +got):\n%s", diff)
	}
	if got := ev.Data64(); got != uint64(1234)<<32|71 {
		t.Fatalf("unexpected data64 %#x", got)
	}
}

func TestDecodeErrorRecord(t *testing.T) {
	var r Record
	r[1] = errDrawable
	xgb.Put16(r[2:], 12)
	xgb.Put32(r[4:], 0xdead)
	xgb.Put16(r[8:], 0)
	r[10] = 14

	ev, ok := DecodeEvent(&r).(ErrorEvent)
	if !ok {
		t.Fatalf("expected ErrorEvent, got %T", DecodeEvent(&r))
	}
	want := GenericError{
		ErrorCode:   errDrawable,
		Sequence:    12,
		BadValue:    0xdead,
		MajorOpcode: 14,
		Name:        "Drawable",
	}
	if diff := cmp.Diff(want, ev.GenericError); diff != "" {
		t.Fatalf("error mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	var r Record
	r[0] = xproto.Expose
	xgb.Put16(r[2:], 3)

	ev, ok := DecodeEvent(&r).(UnknownEvent)
	if !ok {
		t.Fatalf("expected UnknownEvent, got %T", DecodeEvent(&r))
	}
	if ev.Code() != xproto.Expose || ev.Sequence != 3 || ev.Sent {
		t.Fatalf("unexpected unknown event %+v", ev)
	}
}

func TestGenericErrorOfMapsProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		err  interface {
			SequenceId() uint16
			BadId() uint32
			Error() string
		}
		code byte
	}{
		{"window", xproto.WindowError{Sequence: 4, BadValue: 9, MajorOpcode: 8}, errWindow},
		{"match", xproto.MatchError{Sequence: 5, MajorOpcode: 1}, errMatch},
		{"alloc", xproto.AllocError{Sequence: 6, MajorOpcode: 16}, errAlloc},
		{"value", xproto.ValueError{Sequence: 7, BadValue: 3, MajorOpcode: 1}, errValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := genericErrorOf(tt.err)
			if g.ErrorCode != tt.code {
				t.Fatalf("expected code %d, got %d", tt.code, g.ErrorCode)
			}
			if g.Sequence != tt.err.SequenceId() || g.BadValue != tt.err.BadId() {
				t.Fatalf("diagnostic fields not carried over: %+v", g)
			}
		})
	}
}
