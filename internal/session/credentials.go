package session

import (
	"crypto/tls"
	"crypto/x509"
	"errors"

	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/credentials/oauth"
)

var (
	// ErrMissingAddress is returned when no server address was configured.
	ErrMissingAddress = errors.New("server address is required")
	// ErrMissingToken is returned for a secure session without access token.
	ErrMissingToken = errors.New("access token is required")
	// ErrBadRootCertificate is returned when the root certificate PEM holds
	// no usable certificate.
	ErrBadRootCertificate = errors.New("root certificate contains no valid PEM certificates")
)

// Config describes how to reach the service.
type Config struct {
	// Address is the host:port of the service.
	Address string
	// AccessToken is sent as a bearer token on every RPC.
	AccessToken string
	// RootCertificate optionally replaces the system trust anchors (PEM).
	RootCertificate []byte
	// Insecure disables TLS and the bearer token. Local testing only.
	Insecure bool
}

// Validate checks the configuration before dialing.
func (c Config) Validate() error {
	if c.Address == "" {
		return ErrMissingAddress
	}
	if !c.Insecure && c.AccessToken == "" {
		return ErrMissingToken
	}
	return nil
}

// credentialOptions builds the transport and per-RPC credentials.
func credentialOptions(cfg Config) ([]grpc.DialOption, error) {
	if cfg.Insecure {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if len(cfg.RootCertificate) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.RootCertificate) {
			return nil, ErrBadRootCertificate
		}
		tlsConfig.RootCAs = pool
	}

	token := oauth.TokenSource{
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.AccessToken,
			TokenType:   "Bearer",
		}),
	}

	return []grpc.DialOption{
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
		grpc.WithPerRPCCredentials(token),
	}, nil
}
