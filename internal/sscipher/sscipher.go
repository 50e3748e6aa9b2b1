// Package sscipher wraps a net.Conn with Shadowsocks AEAD encryption,
// giving operators an optional payload-confidentiality layer on top of the
// tunnel's plaintext framing. The tunnel protocol itself carries no
// encryption guarantee; wrapping with Shadowsocks is how a deployment adds
// one without changing the wire format.
package sscipher

import (
	"fmt"
	"net"

	"github.com/shadowsocks/go-shadowsocks2/core"
)

// Wrap returns conn wrapped in a Shadowsocks stream cipher using method and
// secret. Reads and writes on the returned net.Conn are transparently
// decrypted/encrypted; callers use it exactly like the conn they passed in.
func Wrap(conn net.Conn, method, secret string) (net.Conn, error) {
	ciph, err := core.PickCipher(method, nil, secret)
	if err != nil {
		return nil, fmt.Errorf("sscipher: pick cipher %q: %w", method, err)
	}
	return ciph.StreamConn(conn), nil
}
