package http

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"

	"github.com/pkg/errors"
)

// TLSConfig contains TLS configuration for fetching from servers which use a
// private CA or require a client certificate.
type TLSConfig struct {
	// CertificatePath contains the path to the client certificate (.crt or .pem file)
	CertificatePath string `help:"Path to client certificate file."`
	// CertificateKeyPath contains the path to the certificate key (.key file)
	CertificateKeyPath string `help:"Path to client certificate key file."`
	// CACertPath is the path to a CA certificate (.crt or .pem file)
	CACertPath string `help:"Path to CA certificate file."`
	// SkipVerify disables verification of server certificates.
	SkipVerify bool `help:"Disables verification of server certificates."`
}

// Enabled reports whether any setting differs from the default.
func (c TLSConfig) Enabled() bool {
	return c.CertificatePath != "" || c.CACertPath != "" || c.SkipVerify
}

// GetTLSConfig builds a tls.Config from c. It returns nil if nothing is set.
func GetTLSConfig(c *TLSConfig) (*tls.Config, error) {
	if c == nil || !c.Enabled() {
		return nil, nil
	}
	cfg := &tls.Config{
		InsecureSkipVerify: c.SkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if c.CertificatePath != "" {
		if c.CertificateKeyPath == "" {
			return nil, errors.New("certificate given without a key")
		}
		cert, err := tls.LoadX509KeyPair(c.CertificatePath, c.CertificateKeyPath)
		if err != nil {
			return nil, errors.Wrap(err, "loading keypair")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if c.CACertPath != "" {
		b, err := os.ReadFile(c.CACertPath)
		if err != nil {
			return nil, errors.Wrap(err, "loading tls ca key")
		}
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM(b); !ok {
			return nil, errors.New("error parsing CA certificate")
		}
		cfg.RootCAs = certPool
	}
	return cfg, nil
}

// WithTLS is an option for Downloader which uses a client configured by c.
// It replaces any client set earlier.
func WithTLS(c *tls.Config) DownloaderOption {
	return func(d *Downloader) {
		if c == nil {
			return
		}
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = c
		d.client = &http.Client{Transport: t}
	}
}
