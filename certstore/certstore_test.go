package certstore

import (
	"os"
	"testing"
	"time"
)

func TestInitGeneratesCA(t *testing.T) {
	t.Parallel()

	cs := NewDiskCertStore(t.TempDir())
	if err := cs.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	cert, err := cs.GetCertificate()
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if !cert.IsCA {
		t.Error("generated certificate is not a CA")
	}
	if cert.Subject.CommonName != certCommonName {
		t.Errorf("common name = %q, want %q", cert.Subject.CommonName, certCommonName)
	}
	if _, err := cs.GetKey(); err != nil {
		t.Fatalf("GetKey: %v", err)
	}

	if _, err := os.Stat(cs.certPath); err != nil {
		t.Errorf("CA cert not on disk: %v", err)
	}
	if _, err := os.Stat(cs.keyPath); err != nil {
		t.Errorf("CA key not on disk: %v", err)
	}
}

func TestInitLoadsExistingCA(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first := NewDiskCertStore(dir)
	if err := first.Init(); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	firstCert, _ := first.GetCertificate()

	second := NewDiskCertStore(dir)
	if err := second.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	secondCert, _ := second.GetCertificate()

	if firstCert.SerialNumber.Cmp(secondCert.SerialNumber) != 0 {
		t.Error("second Init regenerated the CA instead of loading it")
	}
}

func TestInitReplacesCorruptCA(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cs := NewDiskCertStore(dir)
	if err := cs.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := os.WriteFile(cs.certPath, []byte("not a pem"), 0o644); err != nil {
		t.Fatalf("corrupting CA cert: %v", err)
	}

	replaced := NewDiskCertStore(dir)
	if err := replaced.Init(); err != nil {
		t.Fatalf("Init after corruption: %v", err)
	}
	cert, err := replaced.GetCertificate()
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if time.Now().After(cert.NotAfter) {
		t.Error("replacement CA already expired")
	}
}

func TestUninitializedStore(t *testing.T) {
	t.Parallel()

	cs := NewDiskCertStore(t.TempDir())
	if _, err := cs.GetCertificate(); err == nil {
		t.Error("GetCertificate succeeded on uninitialized store")
	}
	if _, err := cs.GetKey(); err == nil {
		t.Error("GetKey succeeded on uninitialized store")
	}
}
