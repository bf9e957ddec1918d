package health

import (
	"context"
	"errors"

	"github.com/MrWong99/recallcheck/pkg/provider/credential"
)

// Credential fails while src cannot resolve a key. Providers without a key
// (local servers) should not register it.
func Credential(name string, src credential.Source) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			_, err := src.Resolve()
			return err
		},
	}
}

// Fallback reports whether the local synthesiser can be used. It is
// advisory: delivery still works while the remote provider does.
func Fallback(f interface{ Available() bool }) Checker {
	return Checker{
		Name:     "fallback",
		Advisory: true,
		Check: func(context.Context) error {
			if f == nil {
				return errors.New("no fallback synthesiser configured")
			}
			if !f.Available() {
				return errors.New("no local speech command found")
			}
			return nil
		},
	}
}

// Recognition reports whether recall can be captured. It is advisory: the
// words can still be presented.
func Recognition(supported func() bool) Checker {
	return Checker{
		Name:     "recognition",
		Advisory: true,
		Check: func(context.Context) error {
			if !supported() {
				return errors.New("speech recognition is not supported on this host")
			}
			return nil
		},
	}
}
