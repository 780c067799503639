package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseBoot,
				Kind:   KindFatalBoot,
				Step:   "engine",
				Name:   "wazero",
				Detail: "cannot create runtime",
			},
			contains: []string{"[boot]", "fatal_boot", "in step engine", "(wazero)", "cannot create runtime"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseStream,
				Kind:  KindDescriptorFault,
			},
			contains: []string{"[stream]", "descriptor_fault"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEntry,
				Kind:   KindAllocation,
				Detail: "thread table full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[entry]", "allocation", "thread table full", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseBoot,
		Kind:  KindOrdering,
		Step:  "ports",
	}

	if !err.Is(&Error{Phase: PhaseBoot, Kind: KindOrdering}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseLoad, Kind: KindOrdering}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseBoot, Kind: KindFatalBoot}) {
		t.Error("Is should not match different kind")
	}

	wrapped := FatalBoot("ports", err)
	if !errors.Is(wrapped, &Error{Phase: PhaseBoot, Kind: KindOrdering}) {
		t.Error("errors.Is should find the ordering error through the cause chain")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLoad, KindMissingBootScript).
		Step("boot-script").
		Name("boot").
		Value(3).
		Cause(cause).
		Detail("searched %d directories", 3).
		Build()

	if err.Phase != PhaseLoad {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLoad)
	}
	if err.Kind != KindMissingBootScript {
		t.Errorf("Kind = %v, want %v", err.Kind, KindMissingBootScript)
	}
	if err.Step != "boot-script" {
		t.Errorf("Step = %q, want boot-script", err.Step)
	}
	if err.Name != "boot" {
		t.Errorf("Name = %q, want boot", err.Name)
	}
	if err.Value != 3 {
		t.Errorf("Value = %v, want 3", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "searched 3 directories" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("FatalBoot", func(t *testing.T) {
		cause := errors.New("out of memory")
		err := FatalBoot("symbols", cause)
		if err.Kind != KindFatalBoot || err.Phase != PhaseBoot {
			t.Errorf("got %s/%s", err.Phase, err.Kind)
		}
		if err.Step != "symbols" {
			t.Errorf("Step = %q, want symbols", err.Step)
		}
		if !errors.Is(err, cause) {
			t.Error("FatalBoot should wrap its cause")
		}
	})

	t.Run("Ordering", func(t *testing.T) {
		err := Ordering("standard-ports", []string{"ports"})
		if err.Kind != KindOrdering {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOrdering)
		}
		if !strings.Contains(err.Detail, "ports") {
			t.Errorf("Detail = %q, should name the missing step", err.Detail)
		}
	})

	t.Run("DescriptorFault", func(t *testing.T) {
		err := DescriptorFault(7, "w0", errors.New("bad file descriptor"))
		if err.Kind != KindDescriptorFault {
			t.Errorf("Kind = %v, want %v", err.Kind, KindDescriptorFault)
		}
		if err.Value != 7 {
			t.Errorf("Value = %v, want 7", err.Value)
		}
		if !strings.Contains(err.Error(), "fd 7") {
			t.Errorf("Error() = %q, should contain descriptor", err.Error())
		}
	})

	t.Run("ReentrantExit", func(t *testing.T) {
		err := ReentrantExit()
		if err.Phase != PhaseExit || err.Kind != KindReentrantExit {
			t.Errorf("got %s/%s", err.Phase, err.Kind)
		}
		if !strings.Contains(err.Detail, "init is in progress") {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("MissingBootScript", func(t *testing.T) {
		err := MissingBootScript("boot", []string{"/a", "/b"})
		if err.Kind != KindMissingBootScript {
			t.Errorf("Kind = %v, want %v", err.Kind, KindMissingBootScript)
		}
		if err.Name != "boot" {
			t.Errorf("Name = %q, want boot", err.Name)
		}
		if !strings.Contains(err.Detail, "/a") || !strings.Contains(err.Detail, "/b") {
			t.Errorf("Detail = %q, should list the search path", err.Detail)
		}
	})

	t.Run("Allocation", func(t *testing.T) {
		err := Allocation(PhaseEntry, "thread record", 4)
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !strings.Contains(err.Detail, "4") {
			t.Errorf("Detail = %q, should contain limit", err.Detail)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseRuntime, "export", "run")
		if err.Kind != KindNotFound || err.Name != "run" {
			t.Errorf("got kind %v name %q", err.Kind, err.Name)
		}
	})
}
