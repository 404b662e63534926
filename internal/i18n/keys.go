// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired      = "auth.required"
	KeyAuthInvalidToken  = "auth.invalid_token"
	KeyAuthTokenExpired  = "auth.token_expired"
	KeyAuthAdminRequired = "auth.admin_required"
	KeyAuthCronRequired  = "auth.cron_required"

	// Questions and answers
	KeyQuestionNotFound = "question.not_found"
	KeyAnswerNotFound   = "answer.not_found"
	KeyAnswerBlocked    = "answer.blocked"
	KeyNotAsker         = "question.not_asker"
	KeyBestAnswerChosen = "question.best_answer_chosen"

	// Pay-per-view
	KeyPoolNotFound     = "pool.not_found"
	KeyAlreadyPurchased = "ppv.already_purchased"
	KeyOwnQuestion      = "ppv.own_question"
	KeyPPVDisabled      = "ppv.disabled"
	KeyInvalidAmount    = "ppv.invalid_amount"

	// Escrow
	KeyNoBounty     = "escrow.no_bounty"
	KeyHoldCaptured = "escrow.hold_captured"

	// Payments
	KeyProcessorFailure = "payment.processor_failure"
	KeyInvalidSignature = "payment.invalid_signature"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	// General
	KeyRateLimitExceeded = "rate_limit.exceeded"
	KeyInternalError     = "error.internal"
)
