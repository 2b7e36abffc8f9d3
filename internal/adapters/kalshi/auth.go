package kalshi

// auth.go — firma de requests de Kalshi.
//
// Cada request firma el mensaje `timestamp_ms + METHOD + signed_path` donde
// signed_path incluye el prefijo de versión del base URL (p.ej.
// /trade-api/v2/markets), sin query string. Dos esquemas, fijos a nivel de
// exchange:
//   HMAC:    HMAC-SHA256 sobre un shared secret base64
//   RSA-PSS: SHA256 con MGF1 y salt de longitud del digest, clave PEM

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

// Signer produce la firma de un mensaje de request.
type Signer interface {
	Sign(message string) (string, error)
}

// HMACSigner firma con HMAC-SHA256 sobre un shared secret en base64.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner decodifica el secret base64 una sola vez.
func NewHMACSigner(base64Secret string) (*HMACSigner, error) {
	secret, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("kalshi.NewHMACSigner: decode secret: %w", err)
	}
	return &HMACSigner{secret: secret}, nil
}

func (s *HMACSigner) Sign(message string) (string, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// RSASigner firma con RSA-PSS-SHA256 usando una clave privada PEM.
type RSASigner struct {
	key *rsa.PrivateKey
}

// NewRSASigner parsea una clave privada RSA en PEM (PKCS#1 o PKCS#8).
func NewRSASigner(pemBytes []byte) (*RSASigner, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("kalshi.NewRSASigner: no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &RSASigner{key: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("kalshi.NewRSASigner: parse key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("kalshi.NewRSASigner: key is not RSA")
	}
	return &RSASigner{key: key}, nil
}

// NewRSASignerFromFile carga la clave desde disco.
func NewRSASignerFromFile(path string) (*RSASigner, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kalshi.NewRSASignerFromFile: read %s: %w", path, err)
	}
	return NewRSASigner(pemBytes)
}

func (s *RSASigner) Sign(message string) (string, error) {
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("kalshi.RSASigner: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
