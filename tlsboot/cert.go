/*
 * Copyright 2022 RapidLoop, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package tlsboot implements the server's TLS certificate bootstrap: a
// self-signed certificate generated on first boot when none exists yet,
// and the hostname-watch housekeeping task that regenerates it whenever
// the system hostname changes.
package tlsboot

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// certValidity is how long a generated self-signed certificate remains
// valid before it needs regenerating.
const certValidity = 10 * 365 * 24 * time.Hour

// EnsureCert makes sure certFile/keyFile exist, generating a self-signed
// certificate for commonName if they don't. keyType selects "ecdsa"
// (default) or "rsa". Returns true if a certificate was generated.
func EnsureCert(certFile, keyFile, keyType, commonName string) (generated bool, err error) {
	if fileExists(certFile) && fileExists(keyFile) {
		return false, nil
	}
	if err := GenerateCert(certFile, keyFile, keyType, commonName); err != nil {
		return false, err
	}
	return true, nil
}

// GenerateCert writes a freshly generated self-signed certificate and
// private key to certFile/keyFile, overwriting any existing files.
func GenerateCert(certFile, keyFile, keyType, commonName string) error {
	if commonName == "" {
		commonName = "localhost"
	}

	var (
		priv   interface{}
		pubKey interface{}
	)
	switch keyType {
	case "", "ecdsa":
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return fmt.Errorf("tlsboot: generate ecdsa key: %w", err)
		}
		priv, pubKey = k, &k.PublicKey
	case "rsa":
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return fmt.Errorf("tlsboot: generate rsa key: %w", err)
		}
		priv, pubKey = k, &k.PublicKey
	default:
		return fmt.Errorf("tlsboot: unknown key type %q", keyType)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("tlsboot: generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName, Organization: []string{"bmcweb"}},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(certValidity),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{commonName},
		IsCA:         true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pubKey, priv)
	if err != nil {
		return fmt.Errorf("tlsboot: create certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("tlsboot: marshal key: %w", err)
	}

	if err := writePEM(certFile, "CERTIFICATE", der, 0o644); err != nil {
		return err
	}
	if err := writePEM(keyFile, "PRIVATE KEY", keyDER, 0o600); err != nil {
		return err
	}
	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("tlsboot: open %s: %w", path, err)
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi != nil && fi.Mode().IsRegular()
}
