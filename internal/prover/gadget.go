// gadget.go - MiMC7 and Miyaguchi-Preneel as circuit constraints.
package prover

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"zethclient/internal/mimc"
)

var roundConstants = mimc.RoundConstants()

func encrypt(api frontend.API, msg, key frontend.Variable) frontend.Variable {
	x := msg
	for _, c := range roundConstants {
		t := api.Add(x, key, c)
		t2 := api.Mul(t, t)
		t4 := api.Mul(t2, t2)
		x = api.Mul(t4, t2, t)
	}
	return api.Add(x, key)
}

func miyaguchiPreneel(api frontend.API, x, y frontend.Variable) frontend.Variable {
	return api.Add(encrypt(api, x, y), x, y)
}

// hashElements mirrors mimc.HashElements.
func hashElements(api frontend.API, iv *big.Int, xs ...frontend.Variable) frontend.Variable {
	var h frontend.Variable = iv
	for _, x := range xs {
		h = miyaguchiPreneel(api, h, x)
	}
	return h
}

func tag(e fr.Element) *big.Int { return e.BigInt(new(big.Int)) }
