package network

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

// GenerateSelfSignedCert returns a certificate valid for the host of
// address as both server and client, and its PEM encoding.
func GenerateSelfSignedCert(address string) (tls.Certificate, []byte, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = append(ips, ip)
	} else if host == "localhost" {
		ips = append(ips, net.IPv4(127, 0, 0, 1), net.IPv6loopback)
	}
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"procomm"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IPAddresses:           ips,
		DNSNames:              []string{host},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	certPEMBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})
	cert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
	}
	return cert, certPEMBytes, nil
}

// SelfSignedMesh generates a certificate for every address and returns, per
// rank, the options that serve with that certificate and trust only the
// certificates of the mesh.
func SelfSignedMesh(addresses map[int]string) (map[int][]PeerOption, error) {
	pool := x509.NewCertPool()
	certs := make(map[int]tls.Certificate, len(addresses))
	for rank, address := range addresses {
		cert, pem, err := GenerateSelfSignedCert(address)
		if err != nil {
			return nil, fmt.Errorf("certificate for rank %d: %w", rank, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("certificate for rank %d is not valid PEM", rank)
		}
		certs[rank] = cert
	}
	opts := make(map[int][]PeerOption, len(certs))
	for rank, cert := range certs {
		opts[rank] = []PeerOption{WithCertificate(cert), WithLimitedCAs(pool)}
	}
	return opts, nil
}
