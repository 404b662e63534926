// internal/services/errors.go
package services

import "errors"

// Settlement outcomes
var (
	// ErrPoolNotFound is benign: no pending pool exists for the question.
	ErrPoolNotFound = errors.New("no pending pool for question")
	// ErrAlreadyDistributed is benign: another caller settled the pool first.
	ErrAlreadyDistributed = errors.New("pool already distributed")
	ErrAnswerNotFound     = errors.New("answer not found")
	ErrAnswerBlocked      = errors.New("answer is blocked")
	ErrPartialSweep       = errors.New("settlement sweep finished with failures")
)

// Ledger and purchase
var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrLedgerWriteFailure = errors.New("ledger write failed")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrAlreadyPurchased   = errors.New("thread already purchased")
	ErrOwnQuestion        = errors.New("askers cannot purchase their own thread")
	ErrPPVDisabled        = errors.New("question has no pay-per-view price")
	ErrNotAsker           = errors.New("only the asker can perform this action")
	ErrBestAnswerChosen   = errors.New("a different best answer was already chosen")
)

// Processor and escrow
var (
	ErrProcessorFailure = errors.New("payment processor failure")
	ErrNoBounty         = errors.New("question has no bounty")
	ErrHoldCaptured     = errors.New("escrow hold already captured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
