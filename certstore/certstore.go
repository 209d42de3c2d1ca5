// Package certstore manages the root CA the proxy signs interception
// certificates with. The CA is persisted on disk and installed into the
// system and NSS trust stores on a best-effort basis.
package certstore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yucer/userscript-proxy/internal/app"
)

const (
	certCommonName = app.Name + " CA"
	caValidity     = 10 * 365 * 24 * time.Hour
	certFilename   = "rootCA.pem"
	keyFilename    = "rootCA-key.pem"
)

// firefoxProfiles lists glob patterns of Firefox profile directories that may
// hold an NSS certificate database.
var firefoxProfiles = []string{
	filepath.Join(os.Getenv("HOME"), ".mozilla/firefox/*"),
	filepath.Join(os.Getenv("HOME"), "snap/firefox/common/.mozilla/firefox/*"),
	filepath.Join(os.Getenv("HOME"), "Library/Application Support/Firefox/Profiles/*"),
	filepath.Join(os.Getenv("USERPROFILE"), "AppData\\Roaming\\Mozilla\\Firefox\\Profiles\\*"),
}

// DiskCertStore keeps the root CA certificate and key in a folder on disk,
// regenerating them when absent or expired.
type DiskCertStore struct {
	mu         sync.RWMutex
	folderPath string
	certPath   string
	keyPath    string
	cert       *x509.Certificate
	key        crypto.PrivateKey
}

func NewDiskCertStore(folderPath string) *DiskCertStore {
	return &DiskCertStore{
		folderPath: folderPath,
		certPath:   filepath.Join(folderPath, certFilename),
		keyPath:    filepath.Join(folderPath, keyFilename),
	}
}

// Init loads the CA from disk, generating a new one if none exists or the
// existing one is no longer usable.
func (cs *DiskCertStore) Init() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := cs.loadCA(); err == nil {
		return nil
	}

	if err := cs.newCA(); err != nil {
		return fmt.Errorf("create new CA: %w", err)
	}
	return nil
}

// GetCertificate returns the root CA certificate.
func (cs *DiskCertStore) GetCertificate() (*x509.Certificate, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.cert == nil {
		return nil, errors.New("cert store uninitialized")
	}
	return cs.cert, nil
}

// GetKey returns the root CA private key.
func (cs *DiskCertStore) GetKey() (crypto.PrivateKey, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.key == nil {
		return nil, errors.New("cert store uninitialized")
	}
	return cs.key, nil
}

// CertPath returns the on-disk location of the CA certificate, for manual
// installation into clients the store cannot reach itself.
func (cs *DiskCertStore) CertPath() string {
	return cs.certPath
}

// InstallTrust installs the CA into the NSS trust stores found on the
// system. Failure is reported, not fatal; the proxy works for clients that
// trust the CA by other means.
func (cs *DiskCertStore) InstallTrust() error {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.cert == nil {
		return errors.New("cert store uninitialized")
	}
	if cs.checkNSS() {
		return nil
	}
	return cs.installNSS()
}

// UninstallTrust removes the CA from the NSS trust stores.
func (cs *DiskCertStore) UninstallTrust() error {
	return cs.uninstallNSS()
}

func (cs *DiskCertStore) loadCA() error {
	certData, err := os.ReadFile(cs.certPath)
	if err != nil {
		return fmt.Errorf("read CA cert: %w", err)
	}
	keyData, err := os.ReadFile(cs.keyPath)
	if err != nil {
		return fmt.Errorf("read CA key: %w", err)
	}

	certBlock, _ := pem.Decode(certData)
	if certBlock == nil || certBlock.Type != "CERTIFICATE" {
		return errors.New("CA cert is not a CERTIFICATE PEM block")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return fmt.Errorf("parse CA cert: %w", err)
	}
	if time.Now().After(cert.NotAfter) {
		return errors.New("CA cert expired")
	}

	keyBlock, _ := pem.Decode(keyData)
	if keyBlock == nil || keyBlock.Type != "PRIVATE KEY" {
		return errors.New("CA key is not a PRIVATE KEY PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return fmt.Errorf("parse CA key: %w", err)
	}

	cs.cert = cert
	cs.key = key
	return nil
}

func (cs *DiskCertStore) newCA() error {
	priv, err := rsa.GenerateKey(rand.Reader, 3072)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	pub := priv.Public()

	spkiASN1, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	var spki struct {
		Algorithm        pkix.AlgorithmIdentifier
		SubjectPublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spkiASN1, &spki); err != nil {
		return fmt.Errorf("unmarshal public key: %w", err)
	}
	skid := sha256.Sum256(spki.SubjectPublicKey.Bytes)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{app.Name},
			CommonName:   certCommonName,
		},
		SubjectKeyId: skid[:20],

		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(caValidity),

		KeyUsage: x509.KeyUsageCertSign,

		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse generated certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	if err := os.MkdirAll(cs.folderPath, 0o755); err != nil {
		return fmt.Errorf("create CA folder: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err := os.WriteFile(cs.certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("write CA cert: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(cs.keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write CA key: %w", err)
	}

	cs.cert = cert
	cs.key = priv
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
