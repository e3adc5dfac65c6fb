package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"testing"
)

var listening = regexp.MustCompile(`Listening on 0\.0\.0\.0:8545`)

func TestLineWatcherReady(t *testing.T) {
	w := NewLineWatcher(listening, 0, nil)

	// The ready line arrives split across writes.
	fmt.Fprint(w, "Available Accounts\n==================\nListening on 0.0.")
	select {
	case <-w.Ready():
		t.Fatal("ready before the line was complete")
	default:
	}
	fmt.Fprint(w, "0.0:8545\r\n")
	select {
	case <-w.Ready():
	default:
		t.Fatal("not ready after matching line")
	}

	// A second match must not panic on the closed channel.
	fmt.Fprint(w, "Listening on 0.0.0.0:8545\n")

	want := []string{"Available Accounts", "==================", "Listening on 0.0.0.0:8545", "Listening on 0.0.0.0:8545"}
	if got := w.Lines(); !reflect.DeepEqual(got, want) {
		t.Fatalf("wrong lines: %q", got)
	}
}

func TestLineWatcherKeepsTail(t *testing.T) {
	w := NewLineWatcher(nil, 3, nil)
	for i := 0; i < 10; i++ {
		fmt.Fprintf(w, "line %d\n", i)
	}
	fmt.Fprint(w, "partial")
	w.Close()

	want := []string{"line 8", "line 9", "partial"}
	if got := w.Lines(); !reflect.DeepEqual(got, want) {
		t.Fatalf("wrong tail: %q", got)
	}
	select {
	case <-w.Ready():
		t.Fatal("nil pattern matched")
	default:
	}
}

func TestLineWatcherTee(t *testing.T) {
	var out bytes.Buffer
	w := NewLineWatcher(nil, 0, PrefixWriter(&out, "[abcd1234] "))
	fmt.Fprint(w, "one\ntwo\nthr")
	if got, want := out.String(), "[abcd1234] one\n[abcd1234] two\n"; got != want {
		t.Fatalf("wrong tee output %q, want %q", got, want)
	}
}

func TestLaunchErrorMessage(t *testing.T) {
	err := &LaunchError{ID: "abcd1234", Output: []string{"error: invalid value"}, Err: ErrExited}
	want := "sandbox abcd1234 did not start: terminated unexpectedly\nerror: invalid value"
	if err.Error() != want {
		t.Fatalf("wrong message %q", err.Error())
	}
	if !errors.Is(err, ErrExited) {
		t.Fatal("LaunchError does not unwrap to ErrExited")
	}
}

