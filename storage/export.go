package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verivote/dreip-node/crypto/signatures/ethereum"
	"github.com/verivote/dreip-node/types"
)

// BuildExport assembles the self-contained public record of a closed
// election. The export is unsigned; the caller signs it with SignExport.
// Assembly asserts the secrecy invariant: a confirmed ballot must not carry
// revealed secrets nor a surviving secret row.
func (s *Storage) BuildExport(electionID uuid.UUID) (*types.ElectionExport, error) {
	election, err := s.Election(electionID)
	if err != nil {
		return nil, err
	}
	if !election.Closed {
		return nil, fmt.Errorf("election %s is not closed", electionID)
	}
	keys, err := s.ElectionKeys(electionID)
	if err != nil {
		return nil, fmt.Errorf("load election keys: %w", err)
	}
	signer, err := ethereum.NewSignerFromBytes(keys.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("load signer: %w", err)
	}

	export := &types.ElectionExport{
		Version:          types.ExportVersion,
		GeneratedAt:      time.Now().UTC(),
		ElectionID:       election.ID,
		Title:            election.Title,
		StartTime:        election.StartTime,
		EndTime:          election.EndTime,
		CurveType:        election.CurveType,
		PublicKey:        election.PublicKey,
		AuthorityAddress: signer.Address().Bytes(),
	}

	for _, question := range election.Questions {
		tally, err := s.QuestionTally(electionID, question.ID, len(question.Choices))
		if err != nil {
			return nil, err
		}
		result := types.QuestionResult{
			Question: question,
			Results:  make([]types.ChoiceResult, len(question.Choices)),
		}
		for i, choice := range question.Choices {
			ct := tally.Choices[i]
			result.Results[i] = types.ChoiceResult{
				Index:      choice.Index,
				Text:       choice.Text,
				Votes:      &ct.Votes,
				Randomness: &ct.Randomness,
				AggregateR: ct.AggregateR,
				AggregateC: ct.AggregateC,
			}
		}
		export.Questions = append(export.Questions, result)
	}

	ballots, err := s.ListBallots(electionID)
	if err != nil {
		return nil, err
	}
	for _, ballot := range ballots {
		if ballot.Status == types.BallotStatusConfirmed {
			if len(ballot.Revealed) > 0 {
				return nil, fmt.Errorf("confirmed ballot %d carries revealed secrets", ballot.BallotID)
			}
			if _, err := s.BallotSecrets(electionID, ballot.BallotID); err == nil {
				return nil, fmt.Errorf("confirmed ballot %d still has a secret row", ballot.BallotID)
			}
		}
		export.Ballots = append(export.Ballots, *ballot)
	}
	return export, nil
}

// SignExport signs the canonical encoding of the export (with the signature
// field empty) with the election's signing key and fills the field in.
func (s *Storage) SignExport(export *types.ElectionExport) error {
	keys, err := s.ElectionKeys(export.ElectionID)
	if err != nil {
		return fmt.Errorf("load election keys: %w", err)
	}
	signer, err := ethereum.NewSignerFromBytes(keys.SignerKey)
	if err != nil {
		return fmt.Errorf("load signer: %w", err)
	}
	payload, err := ExportSigningPayload(export)
	if err != nil {
		return err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("sign export: %w", err)
	}
	export.Signature = sig.Bytes()
	return nil
}

// ExportSigningPayload returns the canonical bytes the export signature is
// computed over: the deterministic encoding of the export with an empty
// signature field.
func ExportSigningPayload(export *types.ElectionExport) ([]byte, error) {
	unsigned := *export
	unsigned.Signature = nil
	payload, err := EncodeArtifact(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return payload, nil
}
