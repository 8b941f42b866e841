// Package recovery recovers master keys from LUKS1 and GELI keyslots.
package recovery

import (
	"io"

	"github.com/deploymenttheory/go-cryptodisk/internal/services"
	"github.com/sirupsen/logrus"
)

// Options tunes key recovery
type Options struct {
	// MaxIterations skips keyslots whose PBKDF2 iteration count exceeds it. Zero disables the limit.
	MaxIterations uint32
}

// base carries what both formats share
type base struct {
	crypto  *services.CryptoService
	options Options
	log     *logrus.Entry
}

func newBase(crypto *services.CryptoService, options Options, log *logrus.Entry) base {
	if crypto == nil {
		crypto = services.NewCryptoService()
	}
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}
	return base{crypto: crypto, options: options, log: log}
}

// tooExpensive reports whether iterations exceed the configured limit
func (b base) tooExpensive(iterations uint32) bool {
	return b.options.MaxIterations != 0 && iterations > b.options.MaxIterations
}
