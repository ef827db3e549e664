package transport

import (
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

func TestIsPrematureClose(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"premature", &SendError{Class: PrematureClose, Err: io.EOF}, true},
		{"other", &SendError{Class: Other, Err: io.EOF}, false},
		{"wrapped premature", errors.Wrap(&SendError{Class: PrematureClose, Err: io.EOF}, "Send"), true},
	}

	for _, tt := range tests {
		if got := IsPrematureClose(tt.err); got != tt.want {
			t.Errorf("%s: IsPrematureClose() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClassifyWriteError(t *testing.T) {
	opErr := &net.OpError{Op: "write", Net: "tcp", Err: syscall.EPIPE}
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"close sent", websocket.ErrCloseSent, PrematureClose},
		{"net closed", net.ErrClosed, PrematureClose},
		{"broken pipe", opErr, PrematureClose},
		{"abnormal closure", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, PrematureClose},
		{"unexpected", errors.New("disk on fire"), Other},
	}

	for _, tt := range tests {
		got := classifyWriteError(tt.err)
		if got.Class != tt.want {
			t.Errorf("%s: class = %s, want %s", tt.name, got.Class, tt.want)
		}
		if got.Unwrap() != tt.err {
			t.Errorf("%s: SendError does not wrap the original error", tt.name)
		}
	}
}

func TestCloseReasonDescription(t *testing.T) {
	if NormalClosure.Description() == "" || EndpointUnavailable.Description() == "" {
		t.Errorf("close reasons must have descriptions")
	}
	if int(EndpointUnavailable) != websocket.CloseGoingAway {
		t.Errorf("EndpointUnavailable = %d, want websocket going away (%d)", EndpointUnavailable, websocket.CloseGoingAway)
	}
}
