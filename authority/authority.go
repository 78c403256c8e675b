// Package authority implements the election authority: the single trusted
// party that creates elections, registers voters, computes ballot
// commitments and proofs on cast, executes the one-shot audit/confirm
// transitions and closes the election. Everything it publishes (receipts,
// the final export) is verifiable by anyone without trusting it: the point
// of the scheme is that a dishonest authority gets caught, not that it is
// assumed honest.
package authority

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verivote/dreip-node/census"
	"github.com/verivote/dreip-node/crypto/dreip"
	"github.com/verivote/dreip-node/crypto/ecc/curves"
	"github.com/verivote/dreip-node/crypto/signatures/ethereum"
	"github.com/verivote/dreip-node/log"
	"github.com/verivote/dreip-node/storage"
	"github.com/verivote/dreip-node/types"
)

// receiptSigningDST prefixes every receipt signature payload, so a receipt
// signature can never be confused with an export signature.
const receiptSigningDST = "DREIP-v1-RECEIPT"

// Authority orchestrates the ballot protocol on top of the storage layer.
type Authority struct {
	stg *storage.Storage
}

// New creates an Authority over the given storage.
func New(stg *storage.Storage) *Authority {
	return &Authority{stg: stg}
}

// Storage exposes the underlying storage for read-only API handlers.
func (a *Authority) Storage() *storage.Storage {
	return a.stg
}

// CreateElection validates an election definition, generates its identifiers
// and key material and stores it. The caller provides title, time window and
// questions; IDs, curve type and keys are filled in here. A question's max
// selections must stay below its choice count: picking every choice leaves
// only one valid ballot, so the question would decide nothing while
// publishing exactly how everyone voted.
func (a *Authority) CreateElection(election *types.Election) (*types.Election, error) {
	if election.Title == "" {
		return nil, fmt.Errorf("%w: empty title", dreip.ErrMalformedInput)
	}
	if !election.EndTime.After(election.StartTime) {
		return nil, fmt.Errorf("%w: end time is not after start time", dreip.ErrMalformedInput)
	}
	if len(election.Questions) == 0 {
		return nil, fmt.Errorf("%w: election has no questions", dreip.ErrMalformedInput)
	}

	election.ID = uuid.New()
	election.CurveType = curves.DefaultCurveType
	election.Closed = false
	for i := range election.Questions {
		q := &election.Questions[i]
		if q.Query == "" {
			return nil, fmt.Errorf("%w: question %d has no query text", dreip.ErrMalformedInput, i)
		}
		if len(q.Choices) < 2 {
			return nil, fmt.Errorf("%w: question %d needs at least 2 choices", dreip.ErrMalformedInput, i)
		}
		if q.MaxSelections < 1 || q.MaxSelections >= len(q.Choices) {
			return nil, fmt.Errorf("%w: question %d max selections %d out of range [1, %d]",
				dreip.ErrMalformedInput, i, q.MaxSelections, len(q.Choices)-1)
		}
		q.ID = uuid.New()
		q.ElectionID = election.ID
		for j := range q.Choices {
			if q.Choices[j].Text == "" {
				return nil, fmt.Errorf("%w: question %d choice %d has no text", dreip.ErrMalformedInput, i, j)
			}
			q.Choices[j].Index = j
		}
	}

	publicKey, privateKey, err := dreip.GenerateKey(election.CurveType)
	if err != nil {
		return nil, fmt.Errorf("generate election key: %w", err)
	}
	election.PublicKey = publicKey.Marshal()
	signer, err := ethereum.NewSigner()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	if err := a.stg.SetElection(election); err != nil {
		return nil, err
	}
	if err := a.stg.SetElectionKeys(election.ID, &storage.ElectionKeys{
		PrivateKey: *types.FromBig(privateKey),
		SignerKey:  signer.HexPrivateKey(),
	}); err != nil {
		return nil, err
	}
	log.Infow("election created", "election", election.ID.String(),
		"questions", len(election.Questions), "authority", signer.Address().Hex())
	return election, nil
}

// RegisterVoters adds parsed roster records to an election.
func (a *Authority) RegisterVoters(electionID uuid.UUID, records []census.Record) ([]*types.Voter, error) {
	if _, err := a.stg.Election(electionID); err != nil {
		return nil, err
	}
	voters := make([]*types.Voter, 0, len(records))
	for _, record := range records {
		voter := &types.Voter{
			ID:             uuid.New(),
			ElectionID:     electionID,
			Username:       record.Username,
			CredentialHash: record.CredentialHash,
		}
		if err := a.stg.SetVoter(voter); err != nil {
			return nil, fmt.Errorf("register voter %q: %w", record.Username, err)
		}
		voters = append(voters, voter)
	}
	log.Infow("voters registered", "election", electionID.String(), "count", len(voters))
	return voters, nil
}

// Authenticate looks up a voter by username and checks the credential.
func (a *Authority) Authenticate(electionID uuid.UUID, username, credential string) (*types.Voter, error) {
	voter, err := a.stg.VoterByUsername(electionID, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !census.CheckCredential(credential, voter.CredentialHash) {
		return nil, ErrUnauthorized
	}
	return voter, nil
}

// CastBallot commits to the voter's selections for their current question,
// builds the zero-knowledge proofs and receipts, signs the receipts and
// stores the ballot in the cast state. choices holds the selected choice
// indexes; its length must equal the question's max selections.
func (a *Authority) CastBallot(electionID, voterID, questionID uuid.UUID, choices []int) (*types.Ballot, error) {
	election, err := a.stg.Election(electionID)
	if err != nil {
		return nil, err
	}
	if !election.AcceptsBallots(time.Now()) {
		return nil, ErrElectionNotOpen
	}
	voter, err := a.stg.Voter(electionID, voterID)
	if err != nil {
		return nil, err
	}
	if voter.FinishedVoting {
		return nil, ErrVoterFinished
	}
	questionIndex, question, err := findQuestion(election, questionID)
	if err != nil {
		return nil, err
	}
	if questionIndex != voter.CurrentQuestion {
		return nil, fmt.Errorf("%w: voter is on question %d, not %d",
			ErrStateConflict, voter.CurrentQuestion, questionIndex)
	}
	selections, err := selectionVector(question, choices)
	if err != nil {
		return nil, err
	}

	publicKey, err := dreip.ParsePoint(election.CurveType, election.PublicKey)
	if err != nil {
		return nil, err
	}
	params, err := dreip.NewParams(election.CurveType, questionID[:], publicKey)
	if err != nil {
		return nil, err
	}
	keys, err := a.stg.ElectionKeys(electionID)
	if err != nil {
		return nil, fmt.Errorf("load election keys: %w", err)
	}
	signer, err := ethereum.NewSignerFromBytes(keys.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("load signer: %w", err)
	}

	var ballot *types.Ballot
	_, err = a.stg.CastBallot(electionID, voterID, questionID, func(ballotID uint64) (*types.Ballot, *storage.BallotSecrets, error) {
		ballot = &types.Ballot{
			BallotID:   ballotID,
			ElectionID: electionID,
			QuestionID: questionID,
			VoterID:    voterID,
			CastAt:     time.Now().UTC(),
		}
		secrets, err := buildBallot(params, ballot, selections, question.MaxSelections)
		if err != nil {
			return nil, nil, err
		}
		if err := signReceipts(signer, ballot); err != nil {
			return nil, nil, err
		}
		return ballot, secrets, nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrKeyAlreadyExists) {
			return nil, fmt.Errorf("%w: %v", ErrBallotPending, err)
		}
		return nil, err
	}
	log.Infow("ballot cast", "election", electionID.String(),
		"question", questionID.String(), "ballot", ballot.BallotID)
	return ballot, nil
}

// AuditBallot executes the audit decision on the voter's pending ballot for
// a question. The ballot's secrets become public, it is excluded from the
// tally forever, and the voter answers the same question again with fresh
// randomness.
func (a *Authority) AuditBallot(electionID, voterID, questionID uuid.UUID) (*types.Ballot, error) {
	ballotID, err := a.stg.PendingBallotID(electionID, voterID, questionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no pending ballot", ErrStateConflict)
		}
		return nil, err
	}
	ballot, err := a.stg.AuditBallot(electionID, ballotID)
	if err != nil {
		if errors.Is(err, storage.ErrBallotNotPending) {
			return nil, fmt.Errorf("%w: %v", ErrStateConflict, err)
		}
		return nil, err
	}
	log.Infow("ballot audited", "election", electionID.String(), "ballot", ballot.BallotID)
	return ballot, nil
}

// ConfirmBallot executes the confirm decision on the voter's pending ballot
// for a question: the ballot's secrets are destroyed, its commitments fold
// into the tally, and the voter moves on to the next question.
func (a *Authority) ConfirmBallot(electionID, voterID, questionID uuid.UUID) (*types.Ballot, error) {
	ballotID, err := a.stg.PendingBallotID(electionID, voterID, questionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no pending ballot", ErrStateConflict)
		}
		return nil, err
	}
	ballot, err := a.stg.ConfirmBallot(electionID, ballotID)
	if err != nil {
		if errors.Is(err, storage.ErrBallotNotPending) {
			return nil, fmt.Errorf("%w: %v", ErrStateConflict, err)
		}
		return nil, err
	}
	log.Infow("ballot confirmed", "election", electionID.String(), "ballot", ballot.BallotID)
	return ballot, nil
}

// CloseElection transitions the election to the closed state, after which
// the per-choice totals become public through the export. Requires the end
// time to have passed unless force is set.
func (a *Authority) CloseElection(electionID uuid.UUID, force bool) error {
	election, err := a.stg.Election(electionID)
	if err != nil {
		return err
	}
	if election.Closed {
		return fmt.Errorf("%w: election already closed", ErrStateConflict)
	}
	if !force && time.Now().Before(election.EndTime) {
		return fmt.Errorf("%w: election end time not reached", ErrStateConflict)
	}
	err = a.stg.UpdateElection(electionID, func(e *types.Election) error {
		if e.Closed {
			return fmt.Errorf("%w: election already closed", ErrStateConflict)
		}
		e.Closed = true
		return nil
	})
	if err != nil {
		return err
	}
	log.Infow("election closed", "election", electionID.String(), "forced", force)
	return nil
}

// Export assembles and signs the public record of a closed election.
func (a *Authority) Export(electionID uuid.UUID) (*types.ElectionExport, error) {
	election, err := a.stg.Election(electionID)
	if err != nil {
		return nil, err
	}
	if !election.Closed {
		return nil, fmt.Errorf("%w: election is not closed", ErrStateConflict)
	}
	export, err := a.stg.BuildExport(electionID)
	if err != nil {
		return nil, err
	}
	if err := a.stg.SignExport(export); err != nil {
		return nil, err
	}
	return export, nil
}

// buildBallot fills the commitment, proof and receipt fields of the ballot
// and returns the secret row to store alongside it.
func buildBallot(params *dreip.Params, ballot *types.Ballot, selections []bool, required int) (*storage.BallotSecrets, error) {
	commitments, secrets, err := dreip.Commit(params, selections, required)
	if err != nil {
		return nil, err
	}
	ctx := &dreip.Context{
		ElectionID: ballot.ElectionID[:],
		QuestionID: ballot.QuestionID[:],
		BallotID:   ballot.BallotID,
	}

	ballot.Commitments = make([]types.CandidateCommitment, len(commitments))
	ballot.Proofs = make([]types.ProofTranscript, len(commitments))
	row := &storage.BallotSecrets{
		Rhos:  make([]types.BigInt, len(secrets)),
		Votes: make([]int, len(secrets)),
	}
	for i := range commitments {
		proof, err := dreip.ProveBinary(params, ctx, i, commitments[i], secrets[i])
		if err != nil {
			return nil, fmt.Errorf("prove candidate %d: %w", i, err)
		}
		ballot.Commitments[i] = types.CandidateCommitment{
			R: commitments[i].R.Marshal(),
			C: commitments[i].C.Marshal(),
		}
		ballot.Proofs[i] = types.ProofTranscript{
			C0: types.FromBig(proof.C0),
			C1: types.FromBig(proof.C1),
			R0: types.FromBig(proof.R0),
			R1: types.FromBig(proof.R1),
		}
		row.Rhos[i] = *types.FromBig(secrets[i].Rho)
		row.Votes[i] = secrets[i].Vote
	}
	sumProof, err := dreip.ProveSum(params, ctx, commitments, secrets, required)
	if err != nil {
		return nil, fmt.Errorf("prove selection count: %w", err)
	}
	ballot.SumProof = types.SumProofTranscript{
		C: types.FromBig(sumProof.C),
		R: types.FromBig(sumProof.R),
	}

	ballot.RandomReceipt, ballot.VoteReceipt = dreip.Receipts(commitments)
	return row, nil
}

// signReceipts signs both receipt hashes, binding them to the election and
// ballot id.
func signReceipts(signer *ethereum.Signer, ballot *types.Ballot) error {
	randomSig, err := signer.Sign(ReceiptSigningPayload(ballot.ElectionID, ballot.BallotID, ballot.RandomReceipt))
	if err != nil {
		return fmt.Errorf("sign random receipt: %w", err)
	}
	voteSig, err := signer.Sign(ReceiptSigningPayload(ballot.ElectionID, ballot.BallotID, ballot.VoteReceipt))
	if err != nil {
		return fmt.Errorf("sign vote receipt: %w", err)
	}
	ballot.RandomSignature = randomSig.Bytes()
	ballot.VoteSignature = voteSig.Bytes()
	return nil
}

// ReceiptSigningPayload is the canonical byte string a receipt signature is
// computed over. Exported so the verifier can rebuild it.
func ReceiptSigningPayload(electionID uuid.UUID, ballotID uint64, receipt []byte) []byte {
	payload := make([]byte, 0, len(receiptSigningDST)+16+8+len(receipt))
	payload = append(payload, receiptSigningDST...)
	payload = append(payload, electionID[:]...)
	payload = binary.BigEndian.AppendUint64(payload, ballotID)
	return append(payload, receipt...)
}

// selectionVector expands a list of selected choice indexes into the boolean
// vector the commitment engine expects, rejecting out-of-range and repeated
// indexes.
func selectionVector(question *types.Question, choices []int) ([]bool, error) {
	selections := make([]bool, len(question.Choices))
	for _, idx := range choices {
		if idx < 0 || idx >= len(selections) {
			return nil, fmt.Errorf("%w: choice index %d out of range", dreip.ErrInvalidSelection, idx)
		}
		if selections[idx] {
			return nil, fmt.Errorf("%w: choice index %d repeated", dreip.ErrInvalidSelection, idx)
		}
		selections[idx] = true
	}
	if len(choices) != question.MaxSelections {
		return nil, fmt.Errorf("%w: %d choices selected, %d required",
			dreip.ErrInvalidSelection, len(choices), question.MaxSelections)
	}
	return selections, nil
}

func findQuestion(election *types.Election, questionID uuid.UUID) (int, *types.Question, error) {
	for i := range election.Questions {
		if election.Questions[i].ID == questionID {
			return i, &election.Questions[i], nil
		}
	}
	return 0, nil, fmt.Errorf("%w: question %s not part of election %s",
		dreip.ErrMalformedInput, questionID, election.ID)
}
