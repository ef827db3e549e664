package methods

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/n0ot/relayhub/pkg/codec"
	"github.com/n0ot/relayhub/pkg/invoke"
)

// fakeHub records every call made by a method.
type fakeHub struct {
	calls []string
}

func (h *fakeHub) record(format string, args ...interface{}) {
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

func (h *fakeHub) AddToGroup(group, connID string) {
	h.record("AddToGroup %s %s", group, connID)
}

func (h *fakeHub) RemoveFromGroup(group, connID string) {
	h.record("RemoveFromGroup %s %s", group, connID)
}

func (h *fakeHub) SendText(connID, text string) error {
	h.record("SendText %s %s", connID, text)
	return nil
}

func (h *fakeHub) InvokeClient(connID, method string, args ...interface{}) error {
	h.record("InvokeClient %s %s %v", connID, method, args)
	return nil
}

func (h *fakeHub) InvokeGroup(group, exceptID, method string, args ...interface{}) error {
	h.record("InvokeGroup %s except=%s %s %v", group, exceptID, method, args)
	return nil
}

func (h *fakeHub) InvokeAll(method string, args ...interface{}) error {
	h.record("InvokeAll %s %v", method, args)
	return nil
}

func newTestRouter(t *testing.T, hub Hub) *invoke.Router {
	t.Helper()
	log, _ := test.NewNullLogger()
	r := invoke.NewRouter(codec.JSON{}, log)
	if err := Register(r, hub); err != nil {
		t.Fatalf("Register: %s", err)
	}
	return r
}

func TestMethods(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  []string
	}{
		{
			name:  "ping",
			frame: `{"methodName":"Ping","arguments":[]}`,
			want:  []string{"InvokeClient c1 Pong []"},
		},
		{
			name:  "echo",
			frame: `{"methodName":"Echo","arguments":["hello"]}`,
			want:  []string{"SendText c1 hello"},
		},
		{
			name:  "join",
			frame: `{"methodName":"JoinGroup","arguments":["room"]}`,
			want: []string{
				"AddToGroup room c1",
				"InvokeGroup room except=c1 Joined [room c1]",
			},
		},
		{
			name:  "leave",
			frame: `{"methodName":"LeaveGroup","arguments":["room"]}`,
			want: []string{
				"RemoveFromGroup room c1",
				"InvokeGroup room except= Left [room c1]",
			},
		},
		{
			name:  "send to group",
			frame: `{"methodName":"SendToGroup","arguments":["room","hi"]}`,
			want:  []string{"InvokeGroup room except=c1 ReceiveMessage [c1 hi]"},
		},
		{
			name:  "send to connection",
			frame: `{"methodName":"SendToConnection","arguments":["c2","hi"]}`,
			want:  []string{"InvokeClient c2 ReceiveMessage [c1 hi]"},
		},
		{
			name:  "broadcast",
			frame: `{"methodName":"Broadcast","arguments":["hi"]}`,
			want:  []string{"InvokeAll ReceiveMessage [c1 hi]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := &fakeHub{}
			r := newTestRouter(t, hub)
			if err := r.Dispatch("c1", []byte(tt.frame), hub); err != nil {
				t.Fatalf("Dispatch: %s", err)
			}
			if !reflect.DeepEqual(hub.calls, tt.want) {
				t.Errorf("calls = %q, want %q", hub.calls, tt.want)
			}
		})
	}
}

func TestEmptyGroupNameRejected(t *testing.T) {
	for _, method := range []string{"JoinGroup", "LeaveGroup"} {
		hub := &fakeHub{}
		r := newTestRouter(t, hub)
		frame := fmt.Sprintf(`{"methodName":%q,"arguments":[""]}`, method)
		err := r.Dispatch("c1", []byte(frame), hub)
		if !errors.Is(err, invoke.ErrHandlerFailed) {
			t.Errorf("%s: err = %v, want ErrHandlerFailed", method, err)
		}
		if len(hub.calls) != 1 || !strings.Contains(hub.calls[0], "No group name given") {
			t.Errorf("%s: calls = %q, want one error reply", method, hub.calls)
		}
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	hub := &fakeHub{}
	r := newTestRouter(t, hub)
	if err := Register(r, hub); err == nil {
		t.Error("Registering methods twice succeeded")
	}
}

func TestRegisteredNames(t *testing.T) {
	r := newTestRouter(t, &fakeHub{})
	want := []string{"Broadcast", "Echo", "JoinGroup", "LeaveGroup", "Ping", "SendToConnection", "SendToGroup"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %q, want %q", got, want)
	}
}
