package testutil

// StaticRunToken generates the same run token every time.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with the same StaticRunToken produces byte-identical
// journals.
//
// Unlike fixpoint.FixedGenerator, which returns tokens in sequence and
// panics when exhausted, this generator never runs out. Use it when every
// solve phase of a test should journal under one token.
//
// Thread-safety: StaticRunToken is stateless and safe for concurrent use.
type StaticRunToken struct {
	token string
}

// NewStaticRunToken creates a generator that always returns token.
// If token is empty, Generate() returns "test-run-default".
func NewStaticRunToken(token string) *StaticRunToken {
	if token == "" {
		token = "test-run-default"
	}
	return &StaticRunToken{token: token}
}

// Generate returns the fixed run token.
//
// Implements fixpoint.RunTokenGenerator.
func (g *StaticRunToken) Generate() string {
	return g.token
}
