package uuid

import gonanoid "github.com/matoous/go-nanoid"

// Generator UUID generator interface
type Generator interface {
	Generate() (string, error)
}

// VerificationAlphabet upper case letters and digits without the look-alikes 0/O and 1/I,
// so codes can be read back over the phone or typed from a printed certificate
const VerificationAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// NanoIDGenerator UUID implementation using NanoID
type NanoIDGenerator struct {
	Length   int
	Alphabet string
}

var _ Generator = &NanoIDGenerator{}

// NewNanoIDGenerator create a new `NanoIDGenerator` instance using the default url-safe alphabet
func NewNanoIDGenerator(length int) *NanoIDGenerator {
	if length < 1 {
		panic("length must be larger than 1")
	}
	return &NanoIDGenerator{Length: length}
}

// NewVerificationCodeGenerator create a generator for public verification codes.
// Each symbol carries 5 bits, 20 symbols give 100 bits drawn from crypto/rand.
func NewVerificationCodeGenerator(length int) *NanoIDGenerator {
	if length < 16 {
		panic("verification codes shorter than 16 symbols are guessable")
	}
	return &NanoIDGenerator{Length: length, Alphabet: VerificationAlphabet}
}

// Generate generate UUID
func (ns *NanoIDGenerator) Generate() (string, error) {
	if ns.Alphabet != "" {
		return gonanoid.Generate(ns.Alphabet, ns.Length)
	}
	return gonanoid.Nanoid(ns.Length)
}
