// Package verifier re-checks a published election export from scratch. It
// trusts nothing from the authority beyond the raw bytes of the export: the
// per-question generators are re-derived, every proof is re-verified, every
// receipt is re-hashed, every signature is re-checked and both tally
// equations are re-computed from the confirmed ballots alone. A clean report
// means the announced result is the only one consistent with the published
// ballots.
package verifier

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/verivote/dreip-node/authority"
	"github.com/verivote/dreip-node/crypto/dreip"
	"github.com/verivote/dreip-node/crypto/ecc"
	"github.com/verivote/dreip-node/crypto/ecc/curves"
	"github.com/verivote/dreip-node/crypto/signatures/ethereum"
	"github.com/verivote/dreip-node/storage"
	"github.com/verivote/dreip-node/types"
)

// FindingKind classifies a verification failure.
type FindingKind string

const (
	// FindingMalformed is structural damage: bad group elements, vector
	// length mismatches, unknown questions.
	FindingMalformed FindingKind = "malformed"
	// FindingProofInvalid is a ballot proof that does not verify.
	FindingProofInvalid FindingKind = "proof-invalid"
	// FindingRevealMismatch is an audited ballot whose revealed secrets
	// do not open its commitments.
	FindingRevealMismatch FindingKind = "reveal-mismatch"
	// FindingSecrecyViolation is a confirmed ballot carrying revealed
	// secrets.
	FindingSecrecyViolation FindingKind = "secrecy-violation"
	// FindingReceiptMismatch is a receipt hash that does not match the
	// ballot's commitments.
	FindingReceiptMismatch FindingKind = "receipt-mismatch"
	// FindingSignatureInvalid is a receipt or export signature that does
	// not verify against the authority address.
	FindingSignatureInvalid FindingKind = "signature-invalid"
	// FindingAggregateMismatch is an announced aggregate that differs
	// from the sum of the confirmed ballots' commitments.
	FindingAggregateMismatch FindingKind = "aggregate-mismatch"
	// FindingTallyMismatch is an announced (T, S) pair that does not
	// reproduce the aggregates.
	FindingTallyMismatch FindingKind = "tally-mismatch"
)

// Finding is one verification failure. BallotID is zero for election-level
// findings; Choice is -1 when the finding is not tied to a single choice.
type Finding struct {
	Kind     FindingKind `json:"kind"`
	BallotID uint64      `json:"ballotId,omitempty"`
	Question int         `json:"question"`
	Choice   int         `json:"choice"`
	Detail   string      `json:"detail"`
}

func (f Finding) String() string {
	where := "election"
	if f.BallotID != 0 {
		where = fmt.Sprintf("ballot %d", f.BallotID)
	}
	return fmt.Sprintf("%s: %s: %s", where, f.Kind, f.Detail)
}

// Report is the outcome of verifying an export.
type Report struct {
	Ballots   int       `json:"ballots"`
	Confirmed int       `json:"confirmed"`
	Audited   int       `json:"audited"`
	Pending   int       `json:"pending"`
	Findings  []Finding `json:"findings,omitempty"`
}

// OK reports whether verification found no problems.
func (r *Report) OK() bool {
	return len(r.Findings) == 0
}

// Verifier checks exports. Progress, if set, is called once per verified
// ballot (from multiple goroutines).
type Verifier struct {
	Progress func()
}

// questionParams is the re-derived public parameter set of one question.
type questionParams struct {
	index    int
	question *types.Question
	params   *dreip.Params
}

// Verify re-checks every claim the export makes. It always runs to
// completion, collecting findings instead of stopping at the first problem.
func (v *Verifier) Verify(export *types.ElectionExport) (*Report, error) {
	report := &Report{}
	collect := newCollector(report)

	curveType := export.CurveType
	if !curves.IsValid(curveType) {
		return nil, fmt.Errorf("%w: unknown curve %q", dreip.ErrMalformedInput, curveType)
	}
	publicKey, err := dreip.ParsePoint(curveType, export.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("election public key: %w", err)
	}
	if len(export.AuthorityAddress) != common.AddressLength {
		return nil, fmt.Errorf("%w: authority address has %d bytes", dreip.ErrMalformedInput, len(export.AuthorityAddress))
	}
	address := common.BytesToAddress(export.AuthorityAddress)

	v.checkExportSignature(export, address, collect)

	// Re-derive every question's generator; nothing in the export is
	// trusted for this.
	questions := make(map[uuid.UUID]*questionParams, len(export.Questions))
	for i := range export.Questions {
		question := &export.Questions[i].Question
		params, err := dreip.NewParams(curveType, question.ID[:], publicKey)
		if err != nil {
			return nil, fmt.Errorf("question %d parameters: %w", i, err)
		}
		questions[question.ID] = &questionParams{index: i, question: question, params: params}
	}

	v.verifyBallots(export, questions, address, collect)
	v.verifyTallies(export, questions, collect)

	report.Ballots = len(export.Ballots)
	for _, ballot := range export.Ballots {
		switch ballot.Status {
		case types.BallotStatusConfirmed:
			report.Confirmed++
		case types.BallotStatusAudited:
			report.Audited++
		default:
			report.Pending++
		}
	}
	return report, nil
}

// verifyBallots re-checks every ballot's proofs, receipts, signatures and
// (for audited ballots) revealed secrets. Ballots are independent, so they
// are verified in parallel.
func (v *Verifier) verifyBallots(export *types.ElectionExport, questions map[uuid.UUID]*questionParams,
	address common.Address, collect func(...Finding),
) {
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for i := range export.Ballots {
		ballot := &export.Ballots[i]
		g.Go(func() error {
			collect(v.verifyBallot(export, ballot, questions, address)...)
			if v.Progress != nil {
				v.Progress()
			}
			return nil
		})
	}
	// The workers only collect findings, they never fail.
	_ = g.Wait()
}

func (v *Verifier) verifyBallot(export *types.ElectionExport, ballot *types.Ballot,
	questions map[uuid.UUID]*questionParams, address common.Address,
) []Finding {
	var findings []Finding
	questionIndex := -1
	fail := func(kind FindingKind, choice int, format string, args ...any) {
		findings = append(findings, Finding{
			Kind:     kind,
			BallotID: ballot.BallotID,
			Question: questionIndex,
			Choice:   choice,
			Detail:   fmt.Sprintf(format, args...),
		})
	}

	qp, ok := questions[ballot.QuestionID]
	if !ok {
		fail(FindingMalformed, -1, "ballot references unknown question %s", ballot.QuestionID)
		return findings
	}
	questionIndex = qp.index
	question, params := qp.question, qp.params

	if len(ballot.Commitments) != len(question.Choices) {
		fail(FindingMalformed, -1, "%d commitments for %d choices", len(ballot.Commitments), len(question.Choices))
		return findings
	}
	if len(ballot.Proofs) != len(ballot.Commitments) {
		fail(FindingMalformed, -1, "%d proofs for %d commitments", len(ballot.Proofs), len(ballot.Commitments))
		return findings
	}

	commitments := make([]dreip.Commitment, len(ballot.Commitments))
	for i := range ballot.Commitments {
		r, err := dreip.ParsePoint(export.CurveType, ballot.Commitments[i].R)
		if err != nil {
			fail(FindingMalformed, i, "commitment R: %v", err)
			return findings
		}
		c, err := dreip.ParsePoint(export.CurveType, ballot.Commitments[i].C)
		if err != nil {
			fail(FindingMalformed, i, "commitment C: %v", err)
			return findings
		}
		commitments[i] = dreip.Commitment{R: r, C: c}
	}

	ctx := &dreip.Context{
		ElectionID: export.ElectionID[:],
		QuestionID: ballot.QuestionID[:],
		BallotID:   ballot.BallotID,
	}
	for i := range commitments {
		proof := transcriptProof(&ballot.Proofs[i])
		if err := dreip.VerifyBinary(params, ctx, i, commitments[i], proof); err != nil {
			fail(FindingProofInvalid, i, "binary proof: %v", err)
		}
	}
	sum := &dreip.SumProof{}
	if ballot.SumProof.C != nil && ballot.SumProof.R != nil {
		sum.C = ballot.SumProof.C.MathBigInt()
		sum.R = ballot.SumProof.R.MathBigInt()
	}
	if err := dreip.VerifySum(params, ctx, commitments, question.MaxSelections, sum); err != nil {
		fail(FindingProofInvalid, -1, "sum proof: %v", err)
	}

	// Receipts are a pure function of the commitment vector.
	randomReceipt, voteReceipt := dreip.Receipts(commitments)
	if !bytes.Equal(randomReceipt, ballot.RandomReceipt) {
		fail(FindingReceiptMismatch, -1, "random receipt does not match commitments")
	}
	if !bytes.Equal(voteReceipt, ballot.VoteReceipt) {
		fail(FindingReceiptMismatch, -1, "vote receipt does not match commitments")
	}
	v.checkReceiptSignature(export, ballot, ballot.RandomReceipt, ballot.RandomSignature, "random", address, fail)
	v.checkReceiptSignature(export, ballot, ballot.VoteReceipt, ballot.VoteSignature, "vote", address, fail)

	switch ballot.Status {
	case types.BallotStatusAudited:
		findings = append(findings, verifyReveals(params, qp, ballot, commitments)...)
	case types.BallotStatusConfirmed:
		if len(ballot.Revealed) > 0 {
			fail(FindingSecrecyViolation, -1, "confirmed ballot carries revealed secrets")
		}
	}
	return findings
}

// verifyReveals checks an audited ballot's published secrets: every pair
// must open its commitment and the vote bits must sum to the required count.
func verifyReveals(params *dreip.Params, qp *questionParams, ballot *types.Ballot, commitments []dreip.Commitment) []Finding {
	var findings []Finding
	fail := func(kind FindingKind, choice int, format string, args ...any) {
		findings = append(findings, Finding{
			Kind: kind, BallotID: ballot.BallotID, Question: qp.index, Choice: choice,
			Detail: fmt.Sprintf(format, args...),
		})
	}
	if len(ballot.Revealed) != len(commitments) {
		fail(FindingMalformed, -1, "%d revealed secrets for %d commitments", len(ballot.Revealed), len(commitments))
		return findings
	}
	votes := 0
	for i, revealed := range ballot.Revealed {
		if revealed.Rho == nil {
			fail(FindingRevealMismatch, i, "missing revealed randomness")
			continue
		}
		err := dreip.VerifyReveal(params, commitments[i], dreip.Secret{
			Rho:  revealed.Rho.MathBigInt(),
			Vote: revealed.Vote,
		})
		if err != nil {
			fail(FindingRevealMismatch, i, "%v", err)
		}
		votes += revealed.Vote
	}
	if votes != qp.question.MaxSelections {
		fail(FindingRevealMismatch, -1, "revealed votes sum to %d, required %d", votes, qp.question.MaxSelections)
	}
	return findings
}

// verifyTallies re-aggregates the confirmed ballots and checks the announced
// aggregates and (T, S) pairs per choice.
func (v *Verifier) verifyTallies(export *types.ElectionExport, questions map[uuid.UUID]*questionParams, collect func(...Finding)) {
	type aggregates struct {
		r, c []ecc.Point
	}
	perQuestion := make(map[uuid.UUID]*aggregates, len(questions))
	for id, qp := range questions {
		agg := &aggregates{
			r: make([]ecc.Point, len(qp.question.Choices)),
			c: make([]ecc.Point, len(qp.question.Choices)),
		}
		for i := range agg.r {
			agg.r[i] = qp.params.H.New()
			agg.r[i].SetZero()
			agg.c[i] = qp.params.H.New()
			agg.c[i].SetZero()
		}
		perQuestion[id] = agg
	}

	// Only confirmed ballots count. Structurally broken ballots were
	// already reported; skip them here.
	for i := range export.Ballots {
		ballot := &export.Ballots[i]
		if ballot.Status != types.BallotStatusConfirmed {
			continue
		}
		qp, ok := questions[ballot.QuestionID]
		if !ok || len(ballot.Commitments) != len(qp.question.Choices) {
			continue
		}
		agg := perQuestion[ballot.QuestionID]
		for j := range ballot.Commitments {
			r, err := dreip.ParsePoint(export.CurveType, ballot.Commitments[j].R)
			if err != nil {
				continue
			}
			c, err := dreip.ParsePoint(export.CurveType, ballot.Commitments[j].C)
			if err != nil {
				continue
			}
			agg.r[j].Add(agg.r[j], r)
			agg.c[j].Add(agg.c[j], c)
		}
	}

	for i := range export.Questions {
		result := &export.Questions[i]
		qp := questions[result.Question.ID]
		agg := perQuestion[result.Question.ID]
		fail := func(kind FindingKind, choice int, format string, args ...any) {
			collect(Finding{
				Kind: kind, Question: qp.index, Choice: choice,
				Detail: fmt.Sprintf(format, args...),
			})
		}
		if len(result.Results) != len(qp.question.Choices) {
			fail(FindingMalformed, -1, "%d results for %d choices", len(result.Results), len(qp.question.Choices))
			continue
		}
		for j, choice := range result.Results {
			announcedR, err := announcedAggregate(export.CurveType, choice.AggregateR)
			if err != nil {
				fail(FindingMalformed, j, "aggregate R: %v", err)
				continue
			}
			announcedC, err := announcedAggregate(export.CurveType, choice.AggregateC)
			if err != nil {
				fail(FindingMalformed, j, "aggregate C: %v", err)
				continue
			}
			if !announcedR.Equal(agg.r[j]) {
				fail(FindingAggregateMismatch, j, "aggregate R differs from sum of confirmed ballots")
			}
			if !announcedC.Equal(agg.c[j]) {
				fail(FindingAggregateMismatch, j, "aggregate C differs from sum of confirmed ballots")
			}
			if choice.Votes == nil || choice.Randomness == nil {
				fail(FindingMalformed, j, "missing announced totals")
				continue
			}
			// Check the announced totals against the re-computed
			// aggregates, not the announced ones.
			err = dreip.VerifyTally(qp.params, dreip.Tally{
				Votes:      choice.Votes.MathBigInt(),
				Randomness: choice.Randomness.MathBigInt(),
			}, agg.r[j], agg.c[j])
			if err != nil {
				fail(FindingTallyMismatch, j, "%v", err)
			}
		}
	}
}

func (v *Verifier) checkExportSignature(export *types.ElectionExport, address common.Address, collect func(...Finding)) {
	if len(export.Signature) == 0 {
		collect(Finding{Kind: FindingSignatureInvalid, Question: -1, Choice: -1, Detail: "export is unsigned"})
		return
	}
	sig, err := ethereum.BytesToSignature(export.Signature)
	if err != nil {
		collect(Finding{Kind: FindingSignatureInvalid, Question: -1, Choice: -1, Detail: fmt.Sprintf("export signature: %v", err)})
		return
	}
	payload, err := storage.ExportSigningPayload(export)
	if err != nil {
		collect(Finding{Kind: FindingMalformed, Question: -1, Choice: -1, Detail: fmt.Sprintf("export encoding: %v", err)})
		return
	}
	if !sig.Verify(payload, address) {
		collect(Finding{Kind: FindingSignatureInvalid, Question: -1, Choice: -1, Detail: "export signature does not verify against authority address"})
	}
}

func (v *Verifier) checkReceiptSignature(export *types.ElectionExport, ballot *types.Ballot,
	receipt, signature types.HexBytes, kind string, address common.Address,
	fail func(FindingKind, int, string, ...any),
) {
	sig, err := ethereum.BytesToSignature(signature)
	if err != nil {
		fail(FindingSignatureInvalid, -1, "%s receipt signature: %v", kind, err)
		return
	}
	payload := authority.ReceiptSigningPayload(export.ElectionID, ballot.BallotID, receipt)
	if !sig.Verify(payload, address) {
		fail(FindingSignatureInvalid, -1, "%s receipt signature does not verify", kind)
	}
}

func transcriptProof(t *types.ProofTranscript) *dreip.BinaryProof {
	proof := &dreip.BinaryProof{}
	if t.C0 != nil {
		proof.C0 = t.C0.MathBigInt()
	}
	if t.C1 != nil {
		proof.C1 = t.C1.MathBigInt()
	}
	if t.R0 != nil {
		proof.R0 = t.R0.MathBigInt()
	}
	if t.R1 != nil {
		proof.R1 = t.R1.MathBigInt()
	}
	return proof
}

// announcedAggregate parses an announced aggregate point; the empty encoding
// is the group identity (no confirmed ballots yet).
func announcedAggregate(curveType string, buf types.HexBytes) (ecc.Point, error) {
	p := curves.New(curveType).New()
	p.SetZero()
	if len(buf) > 0 {
		if err := p.Unmarshal(buf); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// newCollector returns a goroutine-safe append into the report's findings.
func newCollector(report *Report) func(...Finding) {
	var mu sync.Mutex
	return func(findings ...Finding) {
		if len(findings) == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		report.Findings = append(report.Findings, findings...)
	}
}
