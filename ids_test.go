package handler

import "testing"

func TestIDStrings(t *testing.T) {
	t.Parallel()

	if got, want := CallID(42).String(), "42"; got != want {
		t.Errorf("CallID.String() = %q, want %q", got, want)
	}
	if got, want := SessionID("abc").String(), "abc"; got != want {
		t.Errorf("SessionID.String() = %q, want %q", got, want)
	}
	if got, want := TargetID("t1").String(), "t1"; got != want {
		t.Errorf("TargetID.String() = %q, want %q", got, want)
	}
	if got, want := FrameID("f1").String(), "f1"; got != want {
		t.Errorf("FrameID.String() = %q, want %q", got, want)
	}
	if got, want := NavigationID(7).String(), "nav-7"; got != want {
		t.Errorf("NavigationID.String() = %q, want %q", got, want)
	}
}
