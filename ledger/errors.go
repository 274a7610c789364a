package ledger

import (
	"fmt"

	"github.com/axiomesh/tally/pda"
	"github.com/pkg/errors"
)

// ErrorKind is the stable classification a failed instruction surfaces to the
// caller. Callers compare kinds, never messages.
type ErrorKind uint32

const (
	KindNone ErrorKind = iota

	// MissingAuthorization means a required signer did not sign
	MissingAuthorization
	// AuthorityMismatch means the signer is not the record's bound authority
	AuthorityMismatch
	// InvalidDerivation means a supplied address does not match its re-derivation
	InvalidDerivation
	// UninitializedRecord means a record was read before it was created or bound
	UninitializedRecord
	// AccountAlreadyInUse means account creation targeted an existing account
	AccountAlreadyInUse
	// MalformedInstruction means the instruction payload could not be decoded
	MalformedInstruction

	AlreadyInitialized
	AlreadyVoted
	IncorrectProgramID
	InvalidSeeds
	MaxSeedLength
	NotEnoughAccountKeys
	MissingAccount
	PrivilegeEscalation
	ReadonlyModified
	ExternalAccountModified
	ExternalLamportSpend
	UnbalancedInstruction
	InsufficientFunds
	InsufficientFundsForRent
	ArithmeticOverflow
	CallDepthExceeded
	ReentrancyNotAllowed
	UnknownProgram
	InvalidSignature
	AlreadyProcessed
)

var kindNames = map[ErrorKind]string{
	KindNone:                 "none",
	MissingAuthorization:     "missing authorization",
	AuthorityMismatch:        "authority mismatch",
	InvalidDerivation:        "invalid derivation",
	UninitializedRecord:      "uninitialized record",
	AccountAlreadyInUse:      "account already in use",
	MalformedInstruction:     "malformed instruction",
	AlreadyInitialized:       "already initialized",
	AlreadyVoted:             "already voted",
	IncorrectProgramID:       "incorrect program id",
	InvalidSeeds:             "invalid seeds",
	MaxSeedLength:            "max seed length exceeded",
	NotEnoughAccountKeys:     "not enough account keys",
	MissingAccount:           "missing account",
	PrivilegeEscalation:      "privilege escalation",
	ReadonlyModified:         "readonly account modified",
	ExternalAccountModified:  "external account modified",
	ExternalLamportSpend:     "external lamport spend",
	UnbalancedInstruction:    "unbalanced instruction",
	InsufficientFunds:        "insufficient funds",
	InsufficientFundsForRent: "insufficient funds for rent",
	ArithmeticOverflow:       "arithmetic overflow",
	CallDepthExceeded:        "call depth exceeded",
	ReentrancyNotAllowed:     "reentrancy not allowed",
	UnknownProgram:           "unknown program",
	InvalidSignature:         "invalid signature",
	AlreadyProcessed:         "already processed",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

type ProgramError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ProgramError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is matches any ProgramError of the same kind, so the sentinels below work
// with errors.Is regardless of detail.
func (e *ProgramError) Is(target error) bool {
	t, ok := target.(*ProgramError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingAuthorization     = &ProgramError{Kind: MissingAuthorization}
	ErrAuthorityMismatch        = &ProgramError{Kind: AuthorityMismatch}
	ErrInvalidDerivation        = &ProgramError{Kind: InvalidDerivation}
	ErrUninitializedRecord      = &ProgramError{Kind: UninitializedRecord}
	ErrAccountAlreadyInUse      = &ProgramError{Kind: AccountAlreadyInUse}
	ErrMalformedInstruction     = &ProgramError{Kind: MalformedInstruction}
	ErrAlreadyInitialized       = &ProgramError{Kind: AlreadyInitialized}
	ErrAlreadyVoted             = &ProgramError{Kind: AlreadyVoted}
	ErrIncorrectProgramID       = &ProgramError{Kind: IncorrectProgramID}
	ErrInvalidSeeds             = &ProgramError{Kind: InvalidSeeds}
	ErrMaxSeedLength            = &ProgramError{Kind: MaxSeedLength}
	ErrNotEnoughAccountKeys     = &ProgramError{Kind: NotEnoughAccountKeys}
	ErrMissingAccount           = &ProgramError{Kind: MissingAccount}
	ErrPrivilegeEscalation      = &ProgramError{Kind: PrivilegeEscalation}
	ErrReadonlyModified         = &ProgramError{Kind: ReadonlyModified}
	ErrExternalAccountModified  = &ProgramError{Kind: ExternalAccountModified}
	ErrExternalLamportSpend     = &ProgramError{Kind: ExternalLamportSpend}
	ErrUnbalancedInstruction    = &ProgramError{Kind: UnbalancedInstruction}
	ErrInsufficientFunds        = &ProgramError{Kind: InsufficientFunds}
	ErrInsufficientFundsForRent = &ProgramError{Kind: InsufficientFundsForRent}
	ErrArithmeticOverflow       = &ProgramError{Kind: ArithmeticOverflow}
	ErrCallDepthExceeded        = &ProgramError{Kind: CallDepthExceeded}
	ErrReentrancyNotAllowed     = &ProgramError{Kind: ReentrancyNotAllowed}
	ErrUnknownProgram           = &ProgramError{Kind: UnknownProgram}
	ErrInvalidSignature         = &ProgramError{Kind: InvalidSignature}
	ErrAlreadyProcessed         = &ProgramError{Kind: AlreadyProcessed}
)

func NewError(kind ErrorKind, detail string) error {
	return &ProgramError{Kind: kind, Detail: detail}
}

func Errorf(kind ErrorKind, format string, args ...any) error {
	return &ProgramError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, looking through wrapping.
func KindOf(err error) ErrorKind {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNone
}

// FromDerivationError maps pda package failures onto the ledger taxonomy.
func FromDerivationError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pda.ErrMaxSeedLength):
		return NewError(MaxSeedLength, err.Error())
	case errors.Is(err, pda.ErrInvalidSeeds), errors.Is(err, pda.ErrNoViableBump):
		return NewError(InvalidSeeds, err.Error())
	default:
		return err
	}
}
