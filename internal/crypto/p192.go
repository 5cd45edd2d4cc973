package crypto

import (
	"crypto/elliptic"
	"math/big"
	"sync"
)

var (
	p192Once   sync.Once
	p192Params *elliptic.CurveParams
)

// p192 returns secp192r1 (NIST P-192, SEC 2 section 2.5.2).
// The standard library does not ship this curve, so it runs on the generic
// CurveParams arithmetic. It is not constant-time.
func p192() elliptic.Curve {
	p192Once.Do(func() {
		p192Params = &elliptic.CurveParams{
			Name:    "P-192",
			BitSize: 192,
			P:       mustHex("fffffffffffffffffffffffffffffffeffffffffffffffff"),
			N:       mustHex("ffffffffffffffffffffffff99def836146bc9b1b4d22831"),
			B:       mustHex("64210519e59c80e70fa7e9ab72243049feb8deecc146b9b1"),
			Gx:      mustHex("188da80eb03090f67cbf20eb43a18800f4ff0afd82ff1012"),
			Gy:      mustHex("07192b95ffc8da78631011ed6b24cdd573f977a11e794811"),
		}
	})
	return p192Params
}

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("crypto: invalid curve constant " + s)
	}
	return n
}
