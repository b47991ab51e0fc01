// Package tlsconfig bridges the Message Director's own config.TLSConfig
// (SPEC_FULL.md §3.7/§5) to the teacher's pkg/tlsutil/pkg/security/pkg/acme
// TLS-loading machinery, so the network endpoint's bind listener can
// optionally terminate TLS from a static cert/key pair or from ACME.
// This is additive: a Config with TLS disabled never calls into this
// package, and cmd/messaged falls back to a plain net.Listener.
package tlsconfig

import (
	"context"
	"crypto/tls"

	"github.com/mghost99/astron-md/config"
	cerrors "github.com/mghost99/astron-md/errors"
	"github.com/mghost99/astron-md/pkg/security"
	"github.com/mghost99/astron-md/pkg/tlsutil"
)

// Build constructs a *tls.Config for the bind listener from cfg, along
// with a cleanup function that stops any ACME renewal loop. Build
// returns (nil, noop, nil) when cfg.Enabled() is false.
func Build(ctx context.Context, cfg config.TLSConfig) (*tls.Config, func(), error) {
	noop := func() {}
	if !cfg.Enabled() {
		return nil, noop, nil
	}

	serverCfg := security.ServerTLSConfig{
		Enabled:  true,
		CertFile: cfg.CertFile,
		KeyFile:  cfg.KeyFile,
	}

	if cfg.ACME.Enabled {
		serverCfg.Mode = "acme"
		serverCfg.ACME = security.ACMEConfig{
			Enabled:      true,
			DirectoryURL: cfg.ACME.CADirURL,
			Email:        cfg.ACME.Email,
			Domains:      []string{cfg.ACME.Domain},
			StoragePath:  cfg.ACME.CacheDir,
		}
	}

	tlsCfg, cleanup, err := tlsutil.LoadServerTLSConfigWithACME(ctx, serverCfg)
	if err != nil {
		return nil, noop, cerrors.WrapFatal(err, "tlsconfig", "Build", "load TLS config")
	}
	return tlsCfg, cleanup, nil
}
