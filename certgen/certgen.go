// Package certgen mints per-host TLS certificates signed by the proxy's
// root CA.
package certgen

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/yucer/userscript-proxy/internal/app"
)

const leafValidity = 7 * 24 * time.Hour

// Renew certificates slightly before they expire so in-flight handshakes
// never receive one on the edge of validity.
const renewMargin = time.Hour

// certStore provides the signing CA.
type certStore interface {
	GetCertificate() (*x509.Certificate, error)
	GetKey() (crypto.PrivateKey, error)
}

type cachedCert struct {
	cert     *tls.Certificate
	notAfter time.Time
}

// CertGenerator mints and caches interception certificates. It is safe for
// concurrent use.
type CertGenerator struct {
	store certStore

	mu    sync.Mutex
	cache map[string]cachedCert
}

func NewCertGenerator(store certStore) (*CertGenerator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	return &CertGenerator{
		store: store,
		cache: make(map[string]cachedCert),
	}, nil
}

// GetCertificate returns a certificate for the given host, minting one if no
// valid cached certificate exists.
func (cg *CertGenerator) GetCertificate(host string) (*tls.Certificate, error) {
	cg.mu.Lock()
	defer cg.mu.Unlock()

	if entry, ok := cg.cache[host]; ok && time.Until(entry.notAfter) > renewMargin {
		return entry.cert, nil
	}

	cert, notAfter, err := cg.mint(host)
	if err != nil {
		return nil, fmt.Errorf("mint certificate for %q: %w", host, err)
	}
	cg.cache[host] = cachedCert{cert: cert, notAfter: notAfter}
	return cert, nil
}

func (cg *CertGenerator) mint(host string) (*tls.Certificate, time.Time, error) {
	caCert, err := cg.store.GetCertificate()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("get CA cert: %w", err)
	}
	caKey, err := cg.store.GetKey()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("get CA key: %w", err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("generate serial: %w", err)
	}

	notAfter := time.Now().Add(leafValidity)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{app.Name},
			CommonName:   host,
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, caCert, priv.Public(), caKey)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("create certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER, caCert.Raw},
		PrivateKey:  priv,
	}, notAfter, nil
}
