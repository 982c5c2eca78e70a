package archive

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"context deadline exceeded", ErrTimeout},
		{"connection timeout after 30s", ErrTimeout},
		{"AccessDenied: not allowed", ErrAccessDenied},
		{"received status 403", ErrAccessDenied},
		{"open /data/frames: permission denied", ErrPermissionDenied},
		{"open /data/frames: no such file or directory", ErrNotFound},
		{"NoSuchBucket: the bucket does not exist", ErrNotFound},
		{"write /data: no space left on device", ErrDiskFull},
		{"SlowDown: reduce your request rate", ErrThrottled},
		{"NoCredentialProviders: no valid providers", ErrAuth},
		{"dial tcp 10.0.0.1:9000: connection refused", ErrNetwork},
		{"something unexpected", ErrStorage},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := classifyError(errors.New(tt.msg)); got != tt.want {
				t.Errorf("classifyError(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "slow" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError_TimeoutInterface(t *testing.T) {
	if got := classifyError(timeoutError{}); got != ErrTimeout {
		t.Errorf("classifyError = %v, want ErrTimeout", got)
	}
}

func TestWrapErrors(t *testing.T) {
	if WrapWriteError(nil, "p") != nil || WrapReadError(nil, "p") != nil || WrapInitError(nil, "d") != nil {
		t.Fatal("wrapping nil must return nil")
	}

	cause := errors.New("open /x: permission denied")
	err := WrapWriteError(cause, "framewire")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("errors.Is(err, ErrPermissionDenied) = false: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error lost its cause")
	}
	if got, want := err.Error(), "archive write framewire: permission denied: open /x: permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	var se *StorageError
	if !errors.As(WrapReadError(err, "other"), &se) || se.Op != "write" {
		t.Errorf("rewrapping must keep the original classification, got %+v", se)
	}

	if !errors.Is(WrapReadError(context.DeadlineExceeded, ""), ErrTimeout) {
		t.Error("DeadlineExceeded should classify as timeout")
	}
}
