package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("read a.md: %w", ErrRead), KindRead},
		{fmt.Errorf("a.md: %w", ErrDecode), KindDecode},
		{fmt.Errorf("a.md: %w", ErrTooLarge), KindTooLarge},
		{fmt.Errorf("write: %w", fmt.Errorf("rename: %w", ErrPersist)), KindPersist},
		{ErrTraversal, KindTraversal},
		{ErrInference, KindInference},
		{errors.New("boom"), KindInternal},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
