// Package receipt issues and verifies signed settlement receipts. A receipt
// binds a round's outcome and the digest of its full audit history into a
// COSE_Sign1 envelope, so any holder of the issuer's public key can check an
// outcome without access to the engine itself.
package receipt

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/veraison/go-cose"

	"github.com/opentender-io/opentender/core"
)

// Receipt is the signed payload: the terminal outcome of one tender round.
type Receipt struct {
	RoundID       uuid.UUID       `cbor:"round_id"`
	Organization  string          `cbor:"organization"`
	Phase         core.Phase      `cbor:"phase"`
	Winner        string          `cbor:"winner,omitempty"`
	WinningAmount decimal.Decimal `cbor:"winning_amount"`
	EventCount    int             `cbor:"event_count"`
	EventsDigest  []byte          `cbor:"events_digest"`
	IssuedAt      time.Time       `cbor:"issued_at"`
}

// Build assembles a receipt for a settled or cancelled round. The events
// digest is SHA-256 over the CBOR encoding of the round's full history.
func Build(r *core.TenderRound, now time.Time) (Receipt, error) {
	phase := r.Phase()
	if !phase.Terminal() {
		return Receipt{}, fmt.Errorf("receipt for phase %s: %w", phase, core.ErrWrongPhase)
	}

	events := r.Events()
	encoded, err := core.EncodeEvents(events)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode history: %w", err)
	}
	digest := sha256.Sum256(encoded)

	rc := Receipt{
		RoundID:      r.ID(),
		Organization: r.Organization(),
		Phase:        phase,
		EventCount:   len(events),
		EventsDigest: digest[:],
		IssuedAt:     now,
	}
	if winner, ok := r.Winner(); ok {
		rc.Winner = winner
		if bid, ok := r.BidOf(winner); ok {
			rc.WinningAmount = bid.Amount
		}
	}
	return rc, nil
}

// Signer issues COSE_Sign1 receipts with an ECDSA P-384 key.
type Signer struct {
	signer cose.Signer
}

// NewSigner wraps the issuer's private key. ES384 is the only supported
// algorithm.
func NewSigner(key *ecdsa.PrivateKey) (*Signer, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES384, key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	return &Signer{signer: signer}, nil
}

// Sign encodes the receipt to CBOR and wraps it in a signed COSE_Sign1
// envelope.
func (s *Signer) Sign(rc Receipt) ([]byte, error) {
	payload, err := cbor.Marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES384)
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, s.signer); err != nil {
		return nil, fmt.Errorf("sign receipt: %w", err)
	}

	data, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Verify checks the COSE_Sign1 signature against the issuer's public key and
// returns the decoded receipt.
func Verify(data []byte, key *ecdsa.PublicKey) (Receipt, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return Receipt{}, fmt.Errorf("parse envelope: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, key)
	if err != nil {
		return Receipt{}, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return Receipt{}, fmt.Errorf("receipt signature verification failed: %w", err)
	}

	var rc Receipt
	if err := cbor.Unmarshal(msg.Payload, &rc); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return rc, nil
}

// ExtractPayload decodes the receipt WITHOUT verifying the signature.
// COSE_Sign1 structure: [protected, unprotected, payload, signature];
// the payload is element 2.
func ExtractPayload(data []byte) (Receipt, error) {
	var coseArray []any
	if err := cbor.Unmarshal(data, &coseArray); err != nil {
		return Receipt{}, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return Receipt{}, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}
	payload, ok := coseArray[2].([]byte)
	if !ok {
		return Receipt{}, fmt.Errorf("invalid payload in COSE structure")
	}

	var rc Receipt
	if err := cbor.Unmarshal(payload, &rc); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return rc, nil
}
