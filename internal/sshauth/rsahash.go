package sshauth

import "golang.org/x/crypto/ssh"

// negotiateRSA returns signer unchanged. When signer is an RSA key
// exposed as an ssh.AlgorithmSigner, golang.org/x/crypto/ssh's own
// public-key auth path already negotiates the best algorithm the server
// advertises via the "server-sig-algs" extension, preferring
// rsa-sha2-512 then rsa-sha2-256, and falling back to legacy ssh-rsa
// only if a server advertises neither modern algorithm. Wrapping the
// signer to force a single fixed algorithm here would defeat that
// negotiation and could break servers that only advertise
// rsa-sha2-256.
func negotiateRSA(signer ssh.Signer) ssh.Signer {
	return signer
}
